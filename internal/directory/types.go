// Package directory defines the canonical shapes exchanged with the
// LDAP-backed identity store and the collaborator interfaces the console
// core depends on. The backend's looser wire shapes are normalized here
// and never reach the core.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("directory: not found")
	ErrInvalidInput = errors.New("directory: invalid input")
	// ErrRejected indicates the backend refused the payload (server-side
	// validation); the caller surfaces it and keeps the draft.
	ErrRejected = errors.New("directory: rejected")
)

// RoleAssignment is one (role, organization) pairing, either held by the
// acting identity or offered in the catalog. A role is only valid inside
// its declared organization.
type RoleAssignment struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
}

// User is a directory user entry.
type User struct {
	FirstName       string           `json:"first_name"`
	LastName        string           `json:"last_name"`
	Mail            string           `json:"mail"`
	TelephoneNumber string           `json:"telephone_number,omitempty"`
	Organization    string           `json:"organization"`
	Roles           []RoleAssignment `json:"roles"`
	IsActive        bool             `json:"is_active"`
}

// Role is a directory role definition.
type Role struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Organization string `json:"organization"`
}

// Profile is the identity profile persisted at login ("userData"); the
// filter engine reads the operator's organization from it.
type Profile struct {
	Mail         string `json:"mail"`
	Organization string `json:"organization"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

// Credentials are what the login collaborator accepts.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is everything a successful login yields. Claims stay raw
// here; the session store decodes them from the token itself.
type LoginResult struct {
	Token       string           `json:"token"`
	Profile     Profile          `json:"profile"`
	ActiveRoles []RoleAssignment `json:"active_roles"`
	ExpiresAt   time.Time        `json:"expires_at,omitzero"`
}

// TokenValidator asks the backend whether a bearer token is still accepted.
// A transport error is not a verdict; the lifecycle guard treats it as
// invalid (fail closed).
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (bool, error)
}

// Authenticator performs credential login.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (LoginResult, error)
}

// Catalog serves role and organization listings.
type Catalog interface {
	GetRoles(ctx context.Context) ([]RoleAssignment, error)
	GetRolesByOrganization(ctx context.Context, org string) ([]RoleAssignment, error)
	GetOrganizations(ctx context.Context) ([]string, error)
}

// Users is the user CRUD collaborator.
type Users interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, mail string, u User) (User, error)
	DeleteUser(ctx context.Context, mail string) error
}

// PasswordChange is the payload of the password-change sub-form. The
// backend re-checks the current password; the client only enforces the
// form-level invariants.
type PasswordChange struct {
	Mail            string `json:"mail"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Passwords changes the acting identity's own password.
type Passwords interface {
	ChangePassword(ctx context.Context, change PasswordChange) error
}

// Roles is the role CRUD collaborator.
type Roles interface {
	CreateRole(ctx context.Context, r Role) (Role, error)
	UpdateRole(ctx context.Context, name string, r Role) (Role, error)
	DeleteRole(ctx context.Context, name string) error
}
