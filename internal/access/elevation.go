// Package access derives the operator's permission level from the cached
// role-claims snapshot and cascades it into what a form may show and
// select.
package access

import (
	"strings"

	"iddesk.org/internal/directory"
)

const (
	// DefaultAdminOrganization is the reserved organization identifier;
	// elevation is only granted for roles declared inside it.
	DefaultAdminOrganization = "admin"
	// DefaultElevationMarker is the substring an elevated role name must
	// contain. Substring (not equality) matching mirrors the backend's
	// existing role naming; see DESIGN.md.
	DefaultElevationMarker = "super"
)

// Verdict is the derived permission level, scoped to the organization it
// was evaluated against. It is recomputed, never persisted.
type Verdict struct {
	Elevated     bool
	Organization string
}

// Deriver maps role assignments to an elevation verdict. Pure and
// deterministic; both conditions are required, neither is sufficient alone.
type Deriver struct {
	marker   string
	adminOrg string
}

// NewDeriver builds a Deriver; empty arguments fall back to the defaults.
func NewDeriver(marker, adminOrg string) Deriver {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultElevationMarker
	}
	if strings.TrimSpace(adminOrg) == "" {
		adminOrg = DefaultAdminOrganization
	}
	return Deriver{marker: strings.ToLower(marker), adminOrg: adminOrg}
}

// Derive evaluates the assignments. An empty or nil list is never elevated.
func (d Deriver) Derive(assignments []directory.RoleAssignment) Verdict {
	v := Verdict{Organization: d.adminOrg}
	for _, a := range assignments {
		if a.Organization != d.adminOrg {
			continue
		}
		if strings.Contains(strings.ToLower(a.Name), d.marker) {
			v.Elevated = true
			return v
		}
	}
	return v
}

// IsElevated reports elevation under the default marker and admin
// organization.
func IsElevated(assignments []directory.RoleAssignment) bool {
	return NewDeriver("", "").Derive(assignments).Elevated
}
