// Package form orchestrates one open form instance end to end: it owns the
// draft, re-derives filters on organization change, re-validates on every
// change and exposes a single commit contract to the CRUD layer.
package form

import (
	"iddesk.org/internal/directory"
)

// Draft is the mutable record under edit. Snapshot returns a value copy
// safe to hand to an asynchronous validation run.
type Draft interface {
	Snapshot() any
}

// organizationHolder is implemented by drafts with an organization field.
type organizationHolder interface {
	Organization() string
	SetOrganization(org string)
}

// roleHolder is implemented by drafts carrying a role toggle-set.
type roleHolder interface {
	Roles() []directory.RoleAssignment
	SetRoles(roles []directory.RoleAssignment)
}

// UserDraft is the user form's working copy.
type UserDraft struct {
	FirstName    string                     `json:"first_name" validate:"required,min=5,max=30,name_chars"`
	LastName     string                     `json:"last_name" validate:"required,min=5,max=30,name_chars"`
	Mail         string                     `json:"mail" validate:"required,email"`
	Org          string                     `json:"organization" validate:"required,min=5,max=50,org_chars"`
	RoleSet      []directory.RoleAssignment `json:"roles"`
	IsActive     bool                       `json:"is_active"`
	TelephoneNum string                     `json:"telephone_number,omitempty"`
}

// NewUserDraft returns an empty creation draft.
func NewUserDraft() *UserDraft {
	return &UserDraft{IsActive: true}
}

// UserDraftFrom pre-fills a draft from an existing directory entry.
func UserDraftFrom(u directory.User) *UserDraft {
	return &UserDraft{
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Mail:         u.Mail,
		Org:          u.Organization,
		RoleSet:      append([]directory.RoleAssignment(nil), u.Roles...),
		IsActive:     u.IsActive,
		TelephoneNum: u.TelephoneNumber,
	}
}

func (d *UserDraft) Organization() string       { return d.Org }
func (d *UserDraft) SetOrganization(org string) { d.Org = org }

func (d *UserDraft) Roles() []directory.RoleAssignment { return d.RoleSet }
func (d *UserDraft) SetRoles(roles []directory.RoleAssignment) {
	d.RoleSet = roles
}

func (d *UserDraft) Snapshot() any {
	cp := *d
	cp.RoleSet = append([]directory.RoleAssignment(nil), d.RoleSet...)
	return cp
}

// ToUser converts the draft into the directory payload.
func (d *UserDraft) ToUser() directory.User {
	return directory.User{
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Mail:            d.Mail,
		Organization:    d.Org,
		Roles:           append([]directory.RoleAssignment(nil), d.RoleSet...),
		IsActive:        d.IsActive,
		TelephoneNumber: d.TelephoneNum,
	}
}

// RoleDraft is the role form's working copy.
type RoleDraft struct {
	Name        string `json:"name" validate:"required,min=5,max=30,name_chars"`
	Description string `json:"description" validate:"required,min=5,desc_chars"`
	Org         string `json:"organization" validate:"required,min=5,max=30,org_chars"`
}

// RoleDraftFrom pre-fills a draft from an existing role definition.
func RoleDraftFrom(r directory.Role) *RoleDraft {
	return &RoleDraft{Name: r.Name, Description: r.Description, Org: r.Organization}
}

func (d *RoleDraft) Organization() string       { return d.Org }
func (d *RoleDraft) SetOrganization(org string) { d.Org = org }

func (d *RoleDraft) Snapshot() any { return *d }

// ToRole converts the draft into the directory payload.
func (d *RoleDraft) ToRole() directory.Role {
	return directory.Role{Name: d.Name, Description: d.Description, Organization: d.Org}
}

// PasswordDraft is the password-change sub-form's working copy.
type PasswordDraft struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,min=12"`
	Confirm string `json:"confirm_password" validate:"required"`
}

func (d *PasswordDraft) Snapshot() any { return *d }
