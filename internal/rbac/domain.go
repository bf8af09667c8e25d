// Package rbac implements organization-scoped role based access control:
// a catalog of built-in roles, persisted role-permission records, a
// Redis-notified in-memory cache, a permission evaluator and HTTP guards.
package rbac

import (
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Resource is a coarse-grained protected category.
type Resource string

// Protected resource categories. The set is closed; grants referencing
// anything else are rejected at validation time.
const (
	ResourceUsers     Resource = "users"
	ResourceSettings  Resource = "settings"
	ResourceAcademies Resource = "academies"
	ResourcePlayers   Resource = "players"
	ResourceFinance   Resource = "finance"
	ResourceEvents    Resource = "events"
	ResourceTraining  Resource = "training"
	ResourceReports   Resource = "reports"
)

// Resources returns every protected resource in stable order.
func Resources() []Resource {
	return []Resource{
		ResourceUsers,
		ResourceSettings,
		ResourceAcademies,
		ResourcePlayers,
		ResourceFinance,
		ResourceEvents,
		ResourceTraining,
		ResourceReports,
	}
}

// Valid reports whether r is one of the closed resource set.
func (r Resource) Valid() bool {
	switch r {
	case ResourceUsers, ResourceSettings, ResourceAcademies, ResourcePlayers,
		ResourceFinance, ResourceEvents, ResourceTraining, ResourceReports:
		return true
	}
	return false
}

// Action is one of the three permission verbs.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Actions returns the three verbs in stable order.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionDelete}
}

// Valid reports whether a is a known verb.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete:
		return true
	}
	return false
}

// Grant pairs a resource with the actions allowed on it.
type Grant struct {
	Resource Resource `json:"resource"`
	Actions  []Action `json:"actions"`
}

// RolePermission is the persisted permission record for one role name
// within one organization. At most one record exists per
// (organization, role name) pair.
type RolePermission struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organizationId"`
	RoleName  string    `json:"roleName"`
	Grants    []Grant   `json:"permissions"`
	IsBuiltIn bool      `json:"isBuiltIn"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Built-in role names seeded into every organization. Records for these
// names can never be deleted; IsBuiltIn does not otherwise change how a
// record is evaluated.
const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleCoach    = "coach"
	RolePlayer   = "player"
	RoleGuardian = "guardian"
)

// BuiltInRoleNames returns the five fixed role names in seed order.
func BuiltInRoleNames() []string {
	return []string{RoleOwner, RoleAdmin, RoleCoach, RolePlayer, RoleGuardian}
}

var roleNameFolder = cases.Fold()

// NormalizeRoleName trims and case-folds a role name. Every boundary that
// stores, looks up or compares role names goes through this.
func NormalizeRoleName(name string) string {
	return roleNameFolder.String(strings.TrimSpace(name))
}

// IsBuiltInRoleName reports whether name collides with a built-in role,
// ignoring case and surrounding whitespace.
func IsBuiltInRoleName(name string) bool {
	folded := NormalizeRoleName(name)
	for _, builtin := range BuiltInRoleNames() {
		if folded == builtin {
			return true
		}
	}
	return false
}

// Domain errors.
var (
	ErrNotFound          = errors.New("rbac: role permission not found")
	ErrEmptyRoleName     = errors.New("rbac: role name required")
	ErrReservedRoleName  = errors.New("rbac: role name is reserved")
	ErrDuplicateRoleName = errors.New("rbac: role name already exists")
	ErrBuiltInRole       = errors.New("rbac: built-in role records cannot be deleted")
	ErrAlreadySeeded     = errors.New("rbac: organization already has role permissions")
	ErrInvalidGrant      = errors.New("rbac: invalid grant")
)

// ActionSet is a set of verbs granted on one resource.
type ActionSet map[Action]struct{}

// Has reports membership.
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// List returns the granted verbs in read/write/delete order.
func (s ActionSet) List() []Action {
	out := make([]Action, 0, len(s))
	for _, a := range Actions() {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// PermissionSet is a derived mapping from resource to granted actions.
// It is recomputed from its inputs, never persisted.
type PermissionSet map[Resource]ActionSet

// Allows reports whether the set grants action on resource.
func (p PermissionSet) Allows(r Resource, a Action) bool {
	return p[r].Has(a)
}

// Add unions action into the resource's action set.
func (p PermissionSet) Add(r Resource, a Action) {
	set, ok := p[r]
	if !ok {
		set = ActionSet{}
		p[r] = set
	}
	set[a] = struct{}{}
}

// Grants renders the set as a plain resource→actions map for JSON output.
func (p PermissionSet) Grants() map[Resource][]Action {
	out := make(map[Resource][]Action, len(p))
	for r, set := range p {
		out[r] = set.List()
	}
	return out
}

// NormalizeGrants validates grants against the closed resource/action sets,
// merges duplicate resources, deduplicates actions and returns the result
// ordered by resource. A grant with an unknown resource or action fails the
// whole input.
func NormalizeGrants(grants []Grant) ([]Grant, error) {
	merged := PermissionSet{}
	for _, g := range grants {
		if !g.Resource.Valid() {
			return nil, ErrInvalidGrant
		}
		if _, ok := merged[g.Resource]; !ok {
			merged[g.Resource] = ActionSet{}
		}
		for _, a := range g.Actions {
			if !a.Valid() {
				return nil, ErrInvalidGrant
			}
			merged.Add(g.Resource, a)
		}
	}

	out := make([]Grant, 0, len(merged))
	for r, set := range merged {
		out = append(out, Grant{Resource: r, Actions: set.List()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out, nil
}
