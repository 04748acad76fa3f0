// Package httpapi exposes the console engine to the browser UI over a
// JSON API: session lifecycle, form instances, and the usual operational
// endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"iddesk.org/internal/access"
	"iddesk.org/internal/audit"
	"iddesk.org/internal/directory"
	"iddesk.org/internal/obs"
	"iddesk.org/internal/session"
)

// ReadyProbe reports readiness, typically by pinging the audit database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API.
type Config struct {
	Version   string
	Sessions  *session.Store
	Guard     *session.Guard
	Deriver   access.Deriver
	Auth      directory.Authenticator
	Catalog   directory.Catalog
	Users     directory.Users
	Roles     directory.Roles
	Passwords directory.Passwords
	Trail     *audit.Trail
	Probe     ReadyProbe

	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	router chi.Router

	version   string
	sessions  *session.Store
	guard     *session.Guard
	deriver   access.Deriver
	auth      directory.Authenticator
	catalog   directory.Catalog
	users     directory.Users
	roles     directory.Roles
	passwords directory.Passwords
	trail     *audit.Trail
	probe     ReadyProbe

	notices *noticeBuffer
	forms   *formRegistry
}

// New constructs the API and mounts all routes.
func New(cfg Config) *API {
	a := &API{
		version:   cfg.Version,
		sessions:  cfg.Sessions,
		guard:     cfg.Guard,
		deriver:   cfg.Deriver,
		auth:      cfg.Auth,
		catalog:   cfg.Catalog,
		users:     cfg.Users,
		roles:     cfg.Roles,
		passwords: cfg.Passwords,
		trail:     cfg.Trail,
		probe:     cfg.Probe,
		notices:   &noticeBuffer{},
		forms:     newFormRegistry(),
	}

	r := chi.NewRouter()
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(MaxBodyBytes(1 << 20))
	if cfg.RateBurst > 0 && cfg.RatePerSecond > 0 {
		r.Use(RateLimit(cfg.RateBurst, cfg.RatePerSecond))
	}

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.ready)
	r.Get("/v1/info", a.info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1/session", func(r chi.Router) {
		r.Post("/login", a.login)
		r.Post("/logout", a.logout)
		r.Post("/validate", a.validateSession)
		r.Get("/", a.currentSession)
	})
	r.Get("/v1/notices", a.drainNotices)

	r.Route("/v1/forms", func(r chi.Router) {
		r.Post("/user", a.openUserForm)
		r.Post("/role", a.openRoleForm)
		r.Post("/password", a.openPasswordForm)
		r.Route("/{formID}", func(r chi.Router) {
			r.Get("/", a.formStatus)
			r.Post("/field", a.formField)
			r.Post("/organization", a.formOrganization)
			r.Post("/roles/toggle", a.formToggleRole)
			r.Post("/commit", a.formCommit)
			r.Delete("/", a.formClose)
		})
	})

	r.Delete("/v1/users/{mail}", a.deleteUser)
	r.Delete("/v1/roles/{name}", a.deleteRole)

	a.router = r
	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

// Notifier returns the sink notices from the engine are buffered through;
// wire it into the guard and form controllers.
func (a *API) Notifier() session.Notifier {
	return a.notices
}

// --- session handlers ---

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var creds directory.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	res, err := a.auth.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, directory.ErrRejected) || errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusBadGateway, "login unavailable")
		return
	}
	claims, err := a.sessions.SetSession(r.Context(), res.Token, res.Profile, res.ActiveRoles)
	if err != nil {
		writeError(w, http.StatusBadGateway, "session could not be established")
		return
	}
	verdict := a.deriver.Derive(res.ActiveRoles)
	a.trail.Record(r.Context(), audit.Entry{
		Actor:        res.Profile.Mail,
		Organization: res.Profile.Organization,
		Action:       "session.login",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":  res.Profile,
		"claims":   claims,
		"elevated": verdict.Elevated,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	actor := ""
	if p, err := a.sessions.Profile(); err == nil {
		actor = p.Mail
	}
	if err := a.sessions.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	a.forms.closeAll()
	if actor != "" {
		a.trail.Record(r.Context(), audit.Entry{Actor: actor, Action: "session.logout"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) validateSession(w http.ResponseWriter, r *http.Request) {
	res := a.guard.EnsureValid(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"valid": res.Valid})
}

func (a *API) currentSession(w http.ResponseWriter, r *http.Request) {
	profile, err := a.sessions.Profile()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	verdict := a.deriver.Derive(a.sessions.ActiveRoles())
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"profile":       profile,
		"claims":        a.sessions.Claims(),
		"elevated":      verdict.Elevated,
	})
}

func (a *API) drainNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notices": a.notices.drain()})
}

// --- deletes (guard-gated, no form instance) ---

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	mail := chi.URLParam(r, "mail")
	if !a.gate(w, r) {
		return
	}
	if err := a.users.DeleteUser(r.Context(), mail); err != nil {
		writeDirectoryError(w, err)
		return
	}
	a.audit(r.Context(), "user.delete", "user", mail, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !a.gate(w, r) {
		return
	}
	if err := a.roles.DeleteRole(r.Context(), name); err != nil {
		writeDirectoryError(w, err)
		return
	}
	a.audit(r.Context(), "role.delete", "role", name, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// gate runs the token lifecycle check; on failure it answers 401 and the
// caller must return.
func (a *API) gate(w http.ResponseWriter, r *http.Request) bool {
	if res := a.guard.EnsureValid(r.Context()); !res.Valid {
		writeError(w, http.StatusUnauthorized, "session is no longer valid")
		return false
	}
	return true
}

func (a *API) audit(ctx context.Context, action, resourceType, resourceID string, fields map[string]string) {
	actor, org := "", ""
	if p, err := a.sessions.Profile(); err == nil {
		actor, org = p.Mail, p.Organization
	}
	a.trail.Record(ctx, audit.Entry{
		Actor:        actor,
		Organization: org,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Fields:       fields,
	})
}

// --- operational handlers ---

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "iddesk-consoled",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "iddesk-consoled",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, directory.ErrRejected), errors.Is(err, directory.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusBadGateway, "directory unavailable")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// noticeBuffer collects engine notices until the UI polls them.
type noticeBuffer struct {
	mu      sync.Mutex
	entries []noticeEntry
}

type noticeEntry struct {
	Class   session.NoticeClass `json:"class"`
	Message string              `json:"message"`
	At      time.Time           `json:"at"`
}

func (b *noticeBuffer) Notify(class session.NoticeClass, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, noticeEntry{Class: class, Message: message, At: time.Now().UTC()})
}

func (b *noticeBuffer) drain() []noticeEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	if out == nil {
		out = []noticeEntry{}
	}
	return out
}
