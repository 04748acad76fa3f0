package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/token/validate" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		ok := body["token"] == "good-token"
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": ok})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ok, err := c.ValidateToken(context.Background(), "good-token")
	if err != nil || !ok {
		t.Fatalf("ValidateToken = %v, %v", ok, err)
	}
	ok, err = c.ValidateToken(context.Background(), "bad-token")
	if err != nil || ok {
		t.Fatalf("ValidateToken(bad) = %v, %v", ok, err)
	}
}

func TestClientLoginNormalizesRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"token": "issued-token",
			"user_data": {"mail":"op@example.org","organization":"finance"},
			"roles": ["plain_role", {"name":"fin_auditor","organization":"finance"}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.Login(context.Background(), Credentials{Email: "op@example.org", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "issued-token" {
		t.Fatalf("token = %q", res.Token)
	}
	if res.Profile.Organization != "finance" {
		t.Fatalf("profile = %+v", res.Profile)
	}
	if len(res.ActiveRoles) != 2 || res.ActiveRoles[1].Organization != "finance" {
		t.Fatalf("roles = %v", res.ActiveRoles)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"roles":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTokenSource(func() string { return "session-token" }))
	if _, err := c.GetRoles(context.Background()); err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if gotAuth != "Bearer session-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestClientGetOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/organization_units/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"organization_units":[{"ou":["finance"]},{"ou":["retail"]}]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).GetOrganizations(context.Background())
	if err != nil {
		t.Fatalf("GetOrganizations: %v", err)
	}
	if len(got) != 2 || got[0] != "finance" || got[1] != "retail" {
		t.Fatalf("GetOrganizations = %v", got)
	}
}

func TestClientGetRolesByOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("organization"); got != "finance" {
			t.Fatalf("organization query = %q", got)
		}
		_, _ = w.Write([]byte(`{"roles":[{"name":"fin_auditor","organization":"finance"}]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).GetRolesByOrganization(context.Background(), "finance")
	if err != nil || len(got) != 1 {
		t.Fatalf("GetRolesByOrganization = %v, %v", got, err)
	}

	if _, err := NewClient(srv.URL).GetRolesByOrganization(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank organization = %v, want ErrInvalidInput", err)
	}
}

func TestClientMapsRejectionStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/user":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`mail already taken`))
		case "/v1/user/missing%40example.org", "/v1/user/missing@example.org":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateUser(context.Background(), User{Mail: "taken@example.org"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("CreateUser = %v, want ErrRejected", err)
	}
	if err := c.DeleteUser(context.Background(), "missing@example.org"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteUser = %v, want ErrNotFound", err)
	}
	if err := c.DeleteRole(context.Background(), "boom_role"); err == nil {
		t.Fatalf("expected error for server failure")
	}
}

func TestClientChangePasswordRequiresMail(t *testing.T) {
	c := NewClient("http://unused.invalid")
	err := c.ChangePassword(context.Background(), PasswordChange{NewPassword: "fresh-password-123"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ChangePassword = %v, want ErrInvalidInput", err)
	}
}
