package rbac

// DefaultGrants returns the seed grant set for a built-in role name, or nil
// for any other name. The returned slice is a fresh copy on every call.
//
// owner    gets read/write/delete on everything.
// admin    gets read/write on everything.
// coach    reads users, settings, academies, players, training, reports.
// player   reads users, settings, academies, players, training.
// guardian reads users, settings, academies, players.
func DefaultGrants(roleName string) []Grant {
	switch NormalizeRoleName(roleName) {
	case RoleOwner:
		return grantAll(ActionRead, ActionWrite, ActionDelete)
	case RoleAdmin:
		return grantAll(ActionRead, ActionWrite)
	case RoleCoach:
		return grantRead(ResourceUsers, ResourceSettings, ResourceAcademies,
			ResourcePlayers, ResourceTraining, ResourceReports)
	case RolePlayer:
		return grantRead(ResourceUsers, ResourceSettings, ResourceAcademies,
			ResourcePlayers, ResourceTraining)
	case RoleGuardian:
		return grantRead(ResourceUsers, ResourceSettings, ResourceAcademies,
			ResourcePlayers)
	}
	return nil
}

func grantAll(actions ...Action) []Grant {
	grants := make([]Grant, 0, len(Resources()))
	for _, r := range Resources() {
		grants = append(grants, Grant{Resource: r, Actions: append([]Action(nil), actions...)})
	}
	return grants
}

func grantRead(resources ...Resource) []Grant {
	grants := make([]Grant, 0, len(resources))
	for _, r := range resources {
		grants = append(grants, Grant{Resource: r, Actions: []Action{ActionRead}})
	}
	return grants
}
