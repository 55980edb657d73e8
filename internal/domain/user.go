package domain

import "time"

// Role enumerates the single role each user holds.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleITStaff Role = "IT_STAFF"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleITStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsStaff reports whether the role may be assigned tickets.
func (r Role) IsStaff() bool {
	return r == RoleITStaff || r == RoleAdmin
}

// User is the domain model for anyone who can sign in.
type User struct {
	ID           string
	Email        string
	FullName     string
	Department   *string
	Role         Role
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
