package form

import (
	"iddesk.org/internal/validate"
)

// Exact message taxonomy rendered by the UI. Structural messages come from
// the schema tags; cross-field invariants reuse the same field->message
// shape so the UI never sees two kinds of error objects.

// UserSchema validates the user form.
func UserSchema() *validate.Schema {
	return validate.NewSchema(map[string]map[string]string{
		"first_name": {
			"required":   "first name is required",
			"min":        "first name must be at least 5 characters",
			"max":        "first name cannot exceed 30 characters",
			"name_chars": "first name may only contain letters, spaces, dots or hyphens",
		},
		"last_name": {
			"required":   "last name is required",
			"min":        "last name must be at least 5 characters",
			"max":        "last name cannot exceed 30 characters",
			"name_chars": "last name may only contain letters, spaces, dots or hyphens",
		},
		"mail": {
			"required": "email is required",
			"email":    "must be a valid email address",
		},
		"organization": {
			"required":  "organization is required",
			"min":       "organization must be at least 5 characters",
			"max":       "organization cannot exceed 50 characters",
			"org_chars": "organization contains unsupported characters",
		},
	}, userRolesRule)
}

// userRolesRule: a user must hold at least one role. Computed locally, not
// by the structural schema.
func userRolesRule(draft any) (string, string, bool) {
	d, ok := draft.(UserDraft)
	if !ok {
		return "", "", true
	}
	if len(d.RoleSet) == 0 {
		return "roles", "at least one role must be selected", false
	}
	return "", "", true
}

// RoleSchema validates the role form.
func RoleSchema() *validate.Schema {
	return validate.NewSchema(map[string]map[string]string{
		"name": {
			"required":   "name is required",
			"min":        "name must be at least 5 characters",
			"max":        "name cannot exceed 30 characters",
			"name_chars": "name may only contain letters, spaces, underscores, dots or hyphens",
		},
		"description": {
			"required":   "description is required",
			"min":        "description must be at least 5 characters",
			"desc_chars": "description contains unsupported characters",
		},
		"organization": {
			"required":  "organization is required",
			"min":       "organization must be at least 5 characters",
			"max":       "organization cannot exceed 30 characters",
			"org_chars": "organization contains unsupported characters",
		},
	})
}

// PasswordSchema validates the password-change sub-form. The equality and
// inequality invariants are cross-field rules re-evaluated on every
// keystroke, not only on full-draft passes.
func PasswordSchema() *validate.Schema {
	return validate.NewSchema(map[string]map[string]string{
		"current_password": {
			"required": "current password is required",
		},
		"new_password": {
			"required": "new password is required",
			"min":      "must be at least 12 characters",
		},
		"confirm_password": {
			"required": "password confirmation is required",
		},
	}, passwordDiffersRule, passwordConfirmRule)
}

func passwordDiffersRule(draft any) (string, string, bool) {
	d, ok := draft.(PasswordDraft)
	if !ok {
		return "", "", true
	}
	if d.New != "" && d.New == d.Current {
		return "new_password", "new password cannot equal current password", false
	}
	return "", "", true
}

func passwordConfirmRule(draft any) (string, string, bool) {
	d, ok := draft.(PasswordDraft)
	if !ok {
		return "", "", true
	}
	if d.Confirm != d.New {
		return "confirm_password", "passwords do not match", false
	}
	return "", "", true
}
