package directory

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeRolesMixedShapes(t *testing.T) {
	raw := json.RawMessage(`[
		"plain_role",
		{"name":"fin_auditor","organization":"finance"},
		{"name":" padded ","organization":" finance "}
	]`)
	got, err := NormalizeRoles(raw)
	if err != nil {
		t.Fatalf("NormalizeRoles: %v", err)
	}
	want := []RoleAssignment{
		{Name: "plain_role"},
		{Name: "fin_auditor", Organization: "finance"},
		{Name: "padded", Organization: "finance"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeRoles = %v, want %v", got, want)
	}
}

func TestNormalizeRolesDeduplicatesByName(t *testing.T) {
	raw := json.RawMessage(`[
		{"name":"fin_auditor","organization":"finance"},
		"fin_auditor",
		{"name":"fin_auditor","organization":"retail"}
	]`)
	got, err := NormalizeRoles(raw)
	if err != nil {
		t.Fatalf("NormalizeRoles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %v", got)
	}
	if got[0].Organization != "finance" {
		t.Fatalf("first occurrence must win, got %v", got[0])
	}
}

func TestNormalizeRolesSkipsEmptyNames(t *testing.T) {
	got, err := NormalizeRoles(json.RawMessage(`["", "  ", {"name":""}, "real_role"]`))
	if err != nil {
		t.Fatalf("NormalizeRoles: %v", err)
	}
	if len(got) != 1 || got[0].Name != "real_role" {
		t.Fatalf("NormalizeRoles = %v", got)
	}
}

func TestNormalizeRolesRejectsNonList(t *testing.T) {
	if _, err := NormalizeRoles(json.RawMessage(`{"name":"x"}`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNormalizeRolesEmptyInput(t *testing.T) {
	got, err := NormalizeRoles(nil)
	if err != nil || got != nil {
		t.Fatalf("NormalizeRoles(nil) = %v, %v", got, err)
	}
}

func TestNormalizeOrganizationsFlattensUnits(t *testing.T) {
	raw := json.RawMessage(`{"organization_units":[
		{"ou":["finance"]},
		{"ou":["retail","finance"]},
		{"ou":["  "]},
		{"ou":["admin"]}
	]}`)
	got, err := NormalizeOrganizations(raw)
	if err != nil {
		t.Fatalf("NormalizeOrganizations: %v", err)
	}
	want := []string{"finance", "retail", "admin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeOrganizations = %v, want %v", got, want)
	}
}

func TestNormalizeOrganizationsRejectsMalformedCatalog(t *testing.T) {
	if _, err := NormalizeOrganizations(json.RawMessage(`[1,2,3]`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
