package users

import "time"

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoleAssignment scopes a user into one organization. Roles carries one or
// more role names; AcademyIDs narrows the assignment to specific academies,
// empty meaning organization-wide. Role names are stored as given at
// assignment time and may outlive the role records they refer to — a stale
// name simply evaluates to zero grants.
type RoleAssignment struct {
	UserID     int64     `json:"userId"`
	OrgID      string    `json:"organizationId"`
	AcademyIDs []string  `json:"academyIds"`
	Roles      []string  `json:"roles"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
