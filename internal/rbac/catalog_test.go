package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantsByResource(t *testing.T, grants []Grant) map[Resource][]Action {
	t.Helper()
	out := make(map[Resource][]Action, len(grants))
	for _, g := range grants {
		_, dup := out[g.Resource]
		require.False(t, dup, "duplicate resource %s in grant list", g.Resource)
		out[g.Resource] = g.Actions
	}
	return out
}

func TestDefaultGrantsOwnerHasEverything(t *testing.T) {
	byResource := grantsByResource(t, DefaultGrants(RoleOwner))
	require.Len(t, byResource, len(Resources()))
	for _, r := range Resources() {
		assert.ElementsMatch(t, []Action{ActionRead, ActionWrite, ActionDelete}, byResource[r], "resource %s", r)
	}
}

func TestDefaultGrantsAdminReadsAndWritesEverything(t *testing.T) {
	byResource := grantsByResource(t, DefaultGrants(RoleAdmin))
	require.Len(t, byResource, len(Resources()))
	for _, r := range Resources() {
		assert.ElementsMatch(t, []Action{ActionRead, ActionWrite}, byResource[r], "resource %s", r)
	}
}

func TestDefaultGrantsReadOnlyRoles(t *testing.T) {
	cases := []struct {
		role      string
		resources []Resource
	}{
		{RoleCoach, []Resource{ResourceUsers, ResourceSettings, ResourceAcademies, ResourcePlayers, ResourceTraining, ResourceReports}},
		{RolePlayer, []Resource{ResourceUsers, ResourceSettings, ResourceAcademies, ResourcePlayers, ResourceTraining}},
		{RoleGuardian, []Resource{ResourceUsers, ResourceSettings, ResourceAcademies, ResourcePlayers}},
	}

	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			byResource := grantsByResource(t, DefaultGrants(tc.role))
			require.Len(t, byResource, len(tc.resources))
			for _, r := range tc.resources {
				assert.Equal(t, []Action{ActionRead}, byResource[r], "resource %s", r)
			}
		})
	}
}

func TestDefaultGrantsUnknownRole(t *testing.T) {
	assert.Nil(t, DefaultGrants("physio"))
	assert.Nil(t, DefaultGrants(""))
}

func TestDefaultGrantsNormalizesName(t *testing.T) {
	assert.Equal(t, DefaultGrants(RoleOwner), DefaultGrants("  Owner  "))
}

func TestDefaultGrantsReturnsFreshCopies(t *testing.T) {
	first := DefaultGrants(RoleCoach)
	first[0].Actions[0] = ActionDelete

	second := DefaultGrants(RoleCoach)
	assert.Equal(t, []Action{ActionRead}, second[0].Actions)
}

func TestEveryBuiltInRoleHasCatalogEntry(t *testing.T) {
	for _, name := range BuiltInRoleNames() {
		assert.NotEmpty(t, DefaultGrants(name), "role %s", name)
	}
}
