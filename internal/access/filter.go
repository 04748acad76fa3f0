package access

import (
	"sort"
	"strings"

	"iddesk.org/internal/directory"
)

// OrgSelection says how the organization field behaves for a form.
type OrgSelection int

const (
	// OrgLocked: edit mode; the value is fixed to the entity's own
	// organization regardless of operator elevation.
	OrgLocked OrgSelection = iota
	// OrgFree: creation by an elevated operator; any cataloged
	// organization may be chosen.
	OrgFree
	// OrgForced: creation by a non-elevated operator; the value is set to
	// the operator's own organization and not offered as a choice.
	OrgForced
)

// FilterContext is what a specific form instance is allowed to show and
// select. Recomputed whenever the verdict or the organization selection
// changes.
type FilterContext struct {
	VisibleRoles         []directory.RoleAssignment
	AllowedOrganizations []string
	Selection            OrgSelection
	// Organization is the effective organization the context was computed
	// for; empty only for elevated creation before a choice is made.
	Organization string
}

// Engine reconciles the full role catalog, the elevation verdict and the
// current organization selection. Deterministic, no hidden state.
type Engine struct {
	catalog []directory.RoleAssignment
}

// NewEngine builds an Engine over the full role catalog.
func NewEngine(catalog []directory.RoleAssignment) *Engine {
	return &Engine{catalog: append([]directory.RoleAssignment(nil), catalog...)}
}

// Catalog returns the unfiltered role catalog.
func (e *Engine) Catalog() []directory.RoleAssignment {
	return append([]directory.RoleAssignment(nil), e.catalog...)
}

// Resolve computes the filter context for one form instance.
//   - editing an existing entity locks the organization to entityOrg;
//   - otherwise an elevated operator chooses freely (selectedOrg may be
//     empty until a choice is made);
//   - otherwise the organization is forced to the operator's own.
func (e *Engine) Resolve(editing bool, entityOrg string, verdict Verdict, operatorOrg, selectedOrg string) FilterContext {
	switch {
	case editing:
		return FilterContext{
			VisibleRoles:         e.rolesIn(entityOrg),
			AllowedOrganizations: []string{entityOrg},
			Selection:            OrgLocked,
			Organization:         entityOrg,
		}
	case verdict.Elevated:
		visible := e.Catalog()
		if selectedOrg != "" {
			visible = e.rolesIn(selectedOrg)
		}
		return FilterContext{
			VisibleRoles:         visible,
			AllowedOrganizations: e.organizations(),
			Selection:            OrgFree,
			Organization:         selectedOrg,
		}
	default:
		return FilterContext{
			VisibleRoles:         e.rolesIn(operatorOrg),
			AllowedOrganizations: []string{operatorOrg},
			Selection:            OrgForced,
			Organization:         operatorOrg,
		}
	}
}

// rolesIn filters the catalog to one organization. A role is only valid
// within its declared organization.
func (e *Engine) rolesIn(org string) []directory.RoleAssignment {
	if strings.TrimSpace(org) == "" {
		return nil
	}
	var out []directory.RoleAssignment
	for _, r := range e.catalog {
		if r.Organization == org {
			out = append(out, r)
		}
	}
	return out
}

// organizations returns the distinct organizations present in the catalog,
// sorted for stable selector rendering.
func (e *Engine) organizations() []string {
	seen := make(map[string]struct{}, len(e.catalog))
	var out []string
	for _, r := range e.catalog {
		if r.Organization == "" {
			continue
		}
		if _, ok := seen[r.Organization]; ok {
			continue
		}
		seen[r.Organization] = struct{}{}
		out = append(out, r.Organization)
	}
	sort.Strings(out)
	return out
}
