package validate

import (
	"testing"
)

type loginDraft struct {
	Mail string `json:"mail" validate:"required,email"`
	Name string `json:"name" validate:"required,min=5"`
}

func loginSchema() *Schema {
	return NewSchema(map[string]map[string]string{
		"mail": {
			"required": "email is required",
			"email":    "must be a valid email address",
		},
		"name": {
			"required": "name is required",
			"min":      "name must be at least 5 characters",
		},
	})
}

func TestEvaluateCollectsAllViolations(t *testing.T) {
	res := loginSchema().Evaluate(loginDraft{Mail: "nope", Name: ""})
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	if got := res.Errors["mail"]; got != "must be a valid email address" {
		t.Fatalf("mail error = %q", got)
	}
	if got := res.Errors["name"]; got != "name is required" {
		t.Fatalf("name error = %q", got)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected both violations reported, got %v", res.Errors)
	}
}

func TestEvaluateValidDraft(t *testing.T) {
	res := loginSchema().Evaluate(loginDraft{Mail: "ana@example.org", Name: "Ana Maria"})
	if !res.Valid || len(res.Errors) != 0 {
		t.Fatalf("expected clean result, got %v", res.Errors)
	}
}

func TestCrossRuleSharesFieldTaxonomy(t *testing.T) {
	rule := func(draft any) (string, string, bool) {
		d := draft.(loginDraft)
		if d.Name == "forbidden name" {
			return "name", "that name is not allowed", false
		}
		return "", "", true
	}
	s := NewSchema(map[string]map[string]string{}, rule)
	res := s.Evaluate(loginDraft{Mail: "ana@example.org", Name: "forbidden name"})
	if res.Valid {
		t.Fatalf("cross rule violation must invalidate the draft")
	}
	if got := res.Errors["name"]; got != "that name is not allowed" {
		t.Fatalf("cross rule error = %q", got)
	}
}

func TestStructuralErrorTakesPrecedenceOverCrossRule(t *testing.T) {
	rule := func(any) (string, string, bool) {
		return "name", "cross message", false
	}
	s := NewSchema(map[string]map[string]string{
		"name": {"required": "name is required"},
	}, rule)
	res := s.Evaluate(loginDraft{Mail: "ana@example.org"})
	if got := res.Errors["name"]; got != "name is required" {
		t.Fatalf("name error = %q, want the structural message", got)
	}
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	var applied []bool
	p := NewPipeline(loginSchema(), func(valid bool) {
		applied = append(applied, valid)
	})

	// Two runs issued in order; the earlier one resolves last.
	genOld := p.begin()
	genNew := p.begin()

	newRes := Result{Errors: map[string]string{}, Valid: true}
	if ok := p.finish(genNew, newRes); !ok {
		t.Fatalf("latest-generation completion must be applied")
	}
	oldRes := Result{Errors: map[string]string{"mail": "stale"}, Valid: false}
	if ok := p.finish(genOld, oldRes); ok {
		t.Fatalf("stale completion must be discarded")
	}

	latest := p.Latest()
	if !latest.Valid {
		t.Fatalf("stale result overwrote the newer one: %v", latest.Errors)
	}
	if len(applied) != 1 || applied[0] != true {
		t.Fatalf("save-enable signal fired %v, want exactly the applied result", applied)
	}
}

func TestFinishAfterNewerIssueIsStale(t *testing.T) {
	p := NewPipeline(loginSchema(), nil)
	gen := p.begin()
	p.begin() // a newer run was issued before the first completed
	if p.finish(gen, Result{Valid: true}) {
		t.Fatalf("completion is stale once a newer generation exists")
	}
}

func TestRunWaitAppliesSynchronously(t *testing.T) {
	p := NewPipeline(loginSchema(), nil)
	res := p.RunWait(loginDraft{Mail: "bad"})
	if res.Valid {
		t.Fatalf("expected violations")
	}
	latest := p.Latest()
	if latest.Valid || len(latest.Errors) != len(res.Errors) {
		t.Fatalf("RunWait result not applied: %v", latest)
	}
}

func TestLatestBeforeAnyRunIsInvalid(t *testing.T) {
	p := NewPipeline(loginSchema(), nil)
	if p.Latest().Valid {
		t.Fatalf("a pipeline with no applied result must report invalid")
	}
}
