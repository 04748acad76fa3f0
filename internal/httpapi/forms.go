package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"iddesk.org/internal/access"
	"iddesk.org/internal/directory"
	"iddesk.org/internal/form"
	"iddesk.org/internal/session"
)

type formKind string

const (
	kindUser     formKind = "user"
	kindRole     formKind = "role"
	kindPassword formKind = "password"
)

type openForm struct {
	ctrl *form.Controller
	kind formKind
}

// formRegistry tracks the forms currently open in the UI. One controller
// per form id; logout closes everything.
type formRegistry struct {
	mu    sync.Mutex
	items map[string]*openForm
}

func newFormRegistry() *formRegistry {
	return &formRegistry{items: make(map[string]*openForm)}
}

func (fr *formRegistry) put(f *openForm) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.items[f.ctrl.ID()] = f
}

func (fr *formRegistry) get(id string) (*openForm, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	f, ok := fr.items[id]
	return f, ok
}

func (fr *formRegistry) remove(id string) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	delete(fr.items, id)
}

func (fr *formRegistry) closeAll() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	for id, f := range fr.items {
		f.ctrl.Close()
		delete(fr.items, id)
	}
}

// formContext gathers everything a new form instance needs: the operator's
// verdict, their organization and the current role catalog.
func (a *API) formContext(ctx context.Context) (access.Verdict, string, *access.Engine, error) {
	profile, err := a.sessions.Profile()
	if err != nil {
		return access.Verdict{}, "", nil, err
	}
	verdict := a.deriver.Derive(a.sessions.ActiveRoles())
	catalog, err := a.catalog.GetRoles(ctx)
	if err != nil {
		return access.Verdict{}, "", nil, err
	}
	return verdict, profile.Organization, access.NewEngine(catalog), nil
}

func (a *API) openUserForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Editing bool           `json:"editing"`
		User    directory.User `json:"user"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !a.gate(w, r) {
		return
	}
	verdict, operatorOrg, engine, err := a.formContext(r.Context())
	if err != nil {
		writeFormSetupError(w, err)
		return
	}

	var draft *form.UserDraft
	if req.Editing {
		draft = form.UserDraftFrom(req.User)
	} else {
		draft = form.NewUserDraft()
	}
	entityKey := req.User.Mail

	ctrl := form.NewController(form.Config{
		Guard:       a.guard,
		Filters:     engine,
		Verdict:     verdict,
		OperatorOrg: operatorOrg,
		Schema:      form.UserSchema(),
		Draft:       draft,
		Editing:     req.Editing,
		Notifier:    a.notices,
		Commit: func(ctx context.Context, snap any) error {
			d, ok := snap.(form.UserDraft)
			if !ok {
				return errors.New("httpapi: unexpected user draft type")
			}
			payload := d.ToUser()
			if req.Editing {
				_, err := a.users.UpdateUser(ctx, entityKey, payload)
				return err
			}
			_, err := a.users.CreateUser(ctx, payload)
			return err
		},
	})
	ctrl.Open()
	a.forms.put(&openForm{ctrl: ctrl, kind: kindUser})
	writeJSON(w, http.StatusCreated, formView(ctrl))
}

func (a *API) openRoleForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Editing bool           `json:"editing"`
		Role    directory.Role `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !a.gate(w, r) {
		return
	}
	verdict, operatorOrg, engine, err := a.formContext(r.Context())
	if err != nil {
		writeFormSetupError(w, err)
		return
	}

	var draft *form.RoleDraft
	if req.Editing {
		draft = form.RoleDraftFrom(req.Role)
	} else {
		draft = &form.RoleDraft{}
	}
	entityKey := req.Role.Name

	ctrl := form.NewController(form.Config{
		Guard:       a.guard,
		Filters:     engine,
		Verdict:     verdict,
		OperatorOrg: operatorOrg,
		Schema:      form.RoleSchema(),
		Draft:       draft,
		Editing:     req.Editing,
		Notifier:    a.notices,
		Commit: func(ctx context.Context, snap any) error {
			d, ok := snap.(form.RoleDraft)
			if !ok {
				return errors.New("httpapi: unexpected role draft type")
			}
			if req.Editing {
				_, err := a.roles.UpdateRole(ctx, entityKey, d.ToRole())
				return err
			}
			_, err := a.roles.CreateRole(ctx, d.ToRole())
			return err
		},
	})
	ctrl.Open()
	a.forms.put(&openForm{ctrl: ctrl, kind: kindRole})
	writeJSON(w, http.StatusCreated, formView(ctrl))
}

func (a *API) openPasswordForm(w http.ResponseWriter, r *http.Request) {
	if !a.gate(w, r) {
		return
	}
	profile, err := a.sessions.Profile()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	verdict := a.deriver.Derive(a.sessions.ActiveRoles())

	ctrl := form.NewController(form.Config{
		Guard:       a.guard,
		Filters:     access.NewEngine(nil),
		Verdict:     verdict,
		OperatorOrg: profile.Organization,
		Schema:      form.PasswordSchema(),
		Draft:       &form.PasswordDraft{},
		Notifier:    a.notices,
		Commit: func(ctx context.Context, snap any) error {
			d, ok := snap.(form.PasswordDraft)
			if !ok {
				return errors.New("httpapi: unexpected password draft type")
			}
			return a.passwords.ChangePassword(ctx, directory.PasswordChange{
				Mail:            profile.Mail,
				CurrentPassword: d.Current,
				NewPassword:     d.New,
			})
		},
	})
	ctrl.Open()
	a.forms.put(&openForm{ctrl: ctrl, kind: kindPassword})
	writeJSON(w, http.StatusCreated, formView(ctrl))
}

func (a *API) formStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, formView(f.ctrl))
}

func (a *API) formField(w http.ResponseWriter, r *http.Request) {
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	var req struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	mutate, ok := fieldMutation(f.kind, req.Field, req.Value)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown field "+req.Field)
		return
	}
	if err := f.ctrl.Update(mutate); err != nil {
		writeFormError(w, f.ctrl, err)
		return
	}
	writeJSON(w, http.StatusOK, formView(f.ctrl))
}

func (a *API) formOrganization(w http.ResponseWriter, r *http.Request) {
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	var req struct {
		Organization string `json:"organization"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := f.ctrl.SetOrganization(req.Organization); err != nil {
		writeFormError(w, f.ctrl, err)
		return
	}
	writeJSON(w, http.StatusOK, formView(f.ctrl))
}

func (a *API) formToggleRole(w http.ResponseWriter, r *http.Request) {
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := f.ctrl.ToggleRole(req.Name); err != nil {
		writeFormError(w, f.ctrl, err)
		return
	}
	writeJSON(w, http.StatusOK, formView(f.ctrl))
}

func (a *API) formCommit(w http.ResponseWriter, r *http.Request) {
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	if err := f.ctrl.Commit(r.Context()); err != nil {
		writeFormError(w, f.ctrl, err)
		return
	}
	a.forms.remove(f.ctrl.ID())
	a.audit(r.Context(), string(f.kind)+".commit", string(f.kind), f.ctrl.ID(), nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "committed"})
}

func (a *API) formClose(w http.ResponseWriter, r *http.Request) {
	f, ok := a.lookupForm(w, r)
	if !ok {
		return
	}
	f.ctrl.Close()
	a.forms.remove(f.ctrl.ID())
	writeJSON(w, http.StatusOK, map[string]any{"status": "closed"})
}

func (a *API) lookupForm(w http.ResponseWriter, r *http.Request) (*openForm, bool) {
	id := chi.URLParam(r, "formID")
	f, ok := a.forms.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such form")
		return nil, false
	}
	return f, true
}

// fieldMutation maps a wire-level field update onto the draft. Organization
// and role changes have dedicated endpoints because they cascade.
func fieldMutation(kind formKind, field string, raw json.RawMessage) (func(form.Draft), bool) {
	asString := func(set func(d form.Draft, s string)) (func(form.Draft), bool) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		return func(d form.Draft) { set(d, s) }, true
	}

	switch kind {
	case kindUser:
		switch field {
		case "first_name":
			return asString(func(d form.Draft, s string) { d.(*form.UserDraft).FirstName = s })
		case "last_name":
			return asString(func(d form.Draft, s string) { d.(*form.UserDraft).LastName = s })
		case "mail":
			return asString(func(d form.Draft, s string) { d.(*form.UserDraft).Mail = s })
		case "telephone_number":
			return asString(func(d form.Draft, s string) { d.(*form.UserDraft).TelephoneNum = s })
		case "is_active":
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, false
			}
			return func(d form.Draft) { d.(*form.UserDraft).IsActive = b }, true
		}
	case kindRole:
		switch field {
		case "name":
			return asString(func(d form.Draft, s string) { d.(*form.RoleDraft).Name = s })
		case "description":
			return asString(func(d form.Draft, s string) { d.(*form.RoleDraft).Description = s })
		}
	case kindPassword:
		switch field {
		case "current_password":
			return asString(func(d form.Draft, s string) { d.(*form.PasswordDraft).Current = s })
		case "new_password":
			return asString(func(d form.Draft, s string) { d.(*form.PasswordDraft).New = s })
		case "confirm_password":
			return asString(func(d form.Draft, s string) { d.(*form.PasswordDraft).Confirm = s })
		}
	}
	return nil, false
}

func formView(ctrl *form.Controller) map[string]any {
	filters := ctrl.Filters()
	result := ctrl.Result()
	return map[string]any{
		"form_id": ctrl.ID(),
		"state":   stateName(ctrl.State()),
		"valid":   ctrl.Validity(),
		"errors":  result.Errors,
		"filters": map[string]any{
			"visible_roles":         filters.VisibleRoles,
			"allowed_organizations": filters.AllowedOrganizations,
			"selection":             selectionName(filters.Selection),
			"organization":          filters.Organization,
		},
	}
}

func stateName(s form.State) string {
	switch s {
	case form.StateInitializing:
		return "initializing"
	case form.StateReady:
		return "ready"
	case form.StateEditing:
		return "editing"
	case form.StateValidating:
		return "validating"
	case form.StateCommitting:
		return "committing"
	case form.StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func selectionName(s access.OrgSelection) string {
	switch s {
	case access.OrgLocked:
		return "locked"
	case access.OrgFree:
		return "free"
	case access.OrgForced:
		return "forced"
	default:
		return "unknown"
	}
}

func writeFormSetupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "no active session")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusBadGateway, "could not prepare the form: "+err.Error())
	}
}

func writeFormError(w http.ResponseWriter, ctrl *form.Controller, err error) {
	switch {
	case errors.Is(err, form.ErrDraftInvalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "draft is not valid",
			"errors": ctrl.Result().Errors,
		})
	case errors.Is(err, form.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, "session is no longer valid")
	case errors.Is(err, form.ErrBusy):
		writeError(w, http.StatusConflict, "form is busy")
	case errors.Is(err, form.ErrClosed):
		writeError(w, http.StatusGone, "form is closed")
	case errors.Is(err, directory.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
