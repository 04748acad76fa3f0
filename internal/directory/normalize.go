package directory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The backend is loose about shapes: role lists arrive either as plain
// strings or as {name, organization} objects, and the organization catalog
// comes back as arrays of single-element "ou" arrays. Everything is
// normalized here, once, at the boundary.

type organizationUnits struct {
	OrganizationUnits []struct {
		OU []string `json:"ou"`
	} `json:"organization_units"`
}

// NormalizeRoles decodes a role list that may mix plain role-name strings
// with {name, organization} objects. String entries get an empty
// organization; uniqueness is by name, first occurrence wins.
func NormalizeRoles(raw json.RawMessage) ([]RoleAssignment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: roles is not a list", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]RoleAssignment, 0, len(items))
	for _, item := range items {
		var ra RoleAssignment
		if err := json.Unmarshal(item, &ra); err != nil {
			var name string
			if err := json.Unmarshal(item, &name); err != nil {
				return nil, fmt.Errorf("%w: unsupported role entry %s", ErrInvalidInput, string(item))
			}
			ra = RoleAssignment{Name: name}
		}
		ra.Name = strings.TrimSpace(ra.Name)
		ra.Organization = strings.TrimSpace(ra.Organization)
		if ra.Name == "" {
			continue
		}
		if _, ok := seen[ra.Name]; ok {
			continue
		}
		seen[ra.Name] = struct{}{}
		out = append(out, ra)
	}
	return out, nil
}

// NormalizeOrganizations flattens the backend's
// {organization_units:[{ou:["name"]}]} shape into a deduplicated list of
// organization names.
func NormalizeOrganizations(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var units organizationUnits
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, fmt.Errorf("%w: malformed organization catalog", ErrInvalidInput)
	}
	seen := make(map[string]struct{})
	var out []string
	for _, unit := range units.OrganizationUnits {
		for _, ou := range unit.OU {
			ou = strings.TrimSpace(ou)
			if ou == "" {
				continue
			}
			if _, ok := seen[ou]; ok {
				continue
			}
			seen[ou] = struct{}{}
			out = append(out, ou)
		}
	}
	return out, nil
}
