package dto

import (
	"time"

	"github.com/campus-it/helpdesk-service/internal/domain"
)

// RegisterRequest payload for self-service signup.
type RegisterRequest struct {
	Email      string  `json:"email" validate:"required,email,max=254"`
	FullName   string  `json:"full_name" validate:"required,max=200"`
	Password   string  `json:"password" validate:"required,min=8,max=72"`
	Department *string `json:"department" validate:"omitempty,max=100"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateDepartmentRequest sets or clears the department.
type UpdateDepartmentRequest struct {
	Department *string `json:"department" validate:"omitempty,max=100"`
}

// UpdateRoleRequest payload.
type UpdateRoleRequest struct {
	Role domain.Role `json:"role" validate:"required,user_role"`
}

// UpdateActiveRequest payload.
type UpdateActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// UserResponse is the public shape of a user. The password hash never leaves
// the service.
type UserResponse struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name"`
	Department *string     `json:"department"`
	Role       domain.Role `json:"role"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
