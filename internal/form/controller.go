package form

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"iddesk.org/internal/access"
	"iddesk.org/internal/directory"
	"iddesk.org/internal/obs"
	"iddesk.org/internal/session"
	"iddesk.org/internal/validate"
)

// State is the lifecycle position of one form instance.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateEditing
	StateValidating
	StateCommitting
	StateClosed
)

var (
	// ErrClosed is returned by operations on a closed form.
	ErrClosed = errors.New("form: closed")
	// ErrBusy is returned while a commit is in flight.
	ErrBusy = errors.New("form: commit in progress")
	// ErrDraftInvalid blocks commit while validation reports violations.
	ErrDraftInvalid = errors.New("form: draft is not valid")
	// ErrSessionInvalid is returned when the token gate rejects the commit.
	ErrSessionInvalid = errors.New("form: session is not valid")
)

// CommitFunc hands the committed draft snapshot to the external CRUD
// collaborator.
type CommitFunc func(ctx context.Context, draft any) error

// Config wires one form instance.
type Config struct {
	Guard       *session.Guard
	Filters     *access.Engine
	Verdict     access.Verdict
	OperatorOrg string
	Schema      *validate.Schema
	Draft       Draft
	// Editing marks an existing entity whose organization is immutable.
	Editing  bool
	Commit   CommitFunc
	Notifier session.Notifier
	// OnValidity is the save-enable signal, fired in lock-step with every
	// applied validation result.
	OnValidity func(valid bool)
}

// Controller owns exactly one draft; drafts are never shared between
// concurrently open forms. SessionStore is reached only through the guard.
type Controller struct {
	id string

	guard       *session.Guard
	engine      *access.Engine
	verdict     access.Verdict
	operatorOrg string
	editing     bool
	commit      CommitFunc
	notifier    session.Notifier
	pipeline    *validate.Pipeline

	state atomic.Int32
	valid atomic.Bool

	mu      sync.Mutex
	draft   Draft
	filters access.FilterContext
}

// NewController builds a controller; call Open before anything else.
func NewController(cfg Config) *Controller {
	c := &Controller{
		id:          uuid.NewString(),
		guard:       cfg.Guard,
		engine:      cfg.Filters,
		verdict:     cfg.Verdict,
		operatorOrg: cfg.OperatorOrg,
		editing:     cfg.Editing,
		commit:      cfg.Commit,
		notifier:    cfg.Notifier,
		draft:       cfg.Draft,
	}
	if c.notifier == nil {
		c.notifier = session.NopNotifier
	}
	onValidity := cfg.OnValidity
	c.pipeline = validate.NewPipeline(cfg.Schema, func(valid bool) {
		c.valid.Store(valid)
		c.state.CompareAndSwap(int32(StateValidating), int32(StateReady))
		if onValidity != nil {
			onValidity(valid)
		}
	})
	c.state.Store(int32(StateInitializing))
	return c
}

// ID identifies this form instance.
func (c *Controller) ID() string { return c.id }

// State reports the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Open derives the initial filter context, forces the organization where
// the cascade rules demand it, and runs the first validation pass.
func (c *Controller) Open() access.FilterContext {
	c.mu.Lock()
	entityOrg := ""
	if holder, ok := c.draft.(organizationHolder); ok {
		entityOrg = holder.Organization()
	}
	c.filters = c.engine.Resolve(c.editing, entityOrg, c.verdict, c.operatorOrg, entityOrg)
	if holder, ok := c.draft.(organizationHolder); ok && c.filters.Selection == access.OrgForced {
		holder.SetOrganization(c.filters.Organization)
	}
	snapshot := c.draft.Snapshot()
	filters := c.filters
	c.mu.Unlock()

	c.pipeline.RunWait(snapshot)
	c.state.Store(int32(StateReady))
	return filters
}

// Filters returns the current filter context.
func (c *Controller) Filters() access.FilterContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// Update applies a plain-field mutation to the draft and re-validates.
// Organization and role changes go through SetOrganization and ToggleRole,
// which enforce the cascade invariants.
func (c *Controller) Update(mutate func(draft Draft)) error {
	if err := c.editable(); err != nil {
		return err
	}
	c.state.Store(int32(StateEditing))
	c.mu.Lock()
	mutate(c.draft)
	snapshot := c.draft.Snapshot()
	c.mu.Unlock()
	c.revalidate(snapshot)
	return nil
}

// SetOrganization changes the draft's organization. An empty value is
// ignored so placeholder selections never transiently clear roles. The
// change is only honored when the filter context offers the organization
// as a choice: edit mode locks it to the entity's own and a non-elevated
// operator's is forced, so both are no-ops here. A real change clears the
// role set: no draft may hold a role whose organization differs from the
// draft's own.
func (c *Controller) SetOrganization(org string) error {
	if org == "" {
		return nil
	}
	if err := c.editable(); err != nil {
		return err
	}

	c.mu.Lock()
	holder, ok := c.draft.(organizationHolder)
	if !ok || c.editing || c.filters.Selection != access.OrgFree {
		c.mu.Unlock()
		return nil
	}
	if holder.Organization() == org {
		c.mu.Unlock()
		return nil
	}
	c.state.Store(int32(StateEditing))
	holder.SetOrganization(org)
	if roles, ok := c.draft.(roleHolder); ok {
		roles.SetRoles([]directory.RoleAssignment{})
	}
	c.filters = c.engine.Resolve(false, "", c.verdict, c.operatorOrg, org)
	snapshot := c.draft.Snapshot()
	c.mu.Unlock()

	c.revalidate(snapshot)
	return nil
}

// ToggleRole adds the named role to the draft's set, or removes it if
// already present. Only roles visible under the current filter context can
// be toggled on; unknown names are ignored.
func (c *Controller) ToggleRole(name string) error {
	if name == "" {
		return nil
	}
	if err := c.editable(); err != nil {
		return err
	}

	c.mu.Lock()
	holder, ok := c.draft.(roleHolder)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	current := holder.Roles()
	kept := current[:0:0]
	removed := false
	for _, r := range current {
		if r.Name == name {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		var selected *directory.RoleAssignment
		for i := range c.filters.VisibleRoles {
			if c.filters.VisibleRoles[i].Name == name {
				selected = &c.filters.VisibleRoles[i]
				break
			}
		}
		if selected == nil {
			c.mu.Unlock()
			return nil
		}
		kept = append(kept, *selected)
	}
	c.state.Store(int32(StateEditing))
	holder.SetRoles(kept)
	snapshot := c.draft.Snapshot()
	c.mu.Unlock()

	c.revalidate(snapshot)
	return nil
}

// Validity reports the latest applied validation verdict.
func (c *Controller) Validity() bool { return c.valid.Load() }

// Result returns the latest applied validation result.
func (c *Controller) Result() validate.Result { return c.pipeline.Latest() }

// Commit gates on the token lifecycle guard, then hands the draft to the
// CRUD collaborator. An invalid session aborts before any CRUD call. A
// collaborator failure surfaces a notice and returns the form to Ready
// with the draft preserved for retry.
func (c *Controller) Commit(ctx context.Context) error {
	if !c.valid.Load() {
		return ErrDraftInvalid
	}
	if !c.state.CompareAndSwap(int32(StateReady), int32(StateCommitting)) {
		switch c.State() {
		case StateClosed:
			return ErrClosed
		case StateCommitting:
			return ErrBusy
		default:
			// A validation pass is still settling; treat as not ready.
			return ErrBusy
		}
	}

	if res := c.guard.EnsureValid(ctx); !res.Valid {
		c.state.Store(int32(StateReady))
		c.notifier.Notify(session.NoticeError, "your session is no longer valid; the change was not saved")
		return ErrSessionInvalid
	}

	c.mu.Lock()
	snapshot := c.draft.Snapshot()
	c.mu.Unlock()

	if err := c.commit(ctx, snapshot); err != nil {
		c.state.Store(int32(StateReady))
		c.notifier.Notify(session.NoticeError, "the change could not be saved: "+err.Error())
		obs.Logger().Warn("form commit failed", zap.String("form_id", c.id), zap.Error(err))
		return err
	}
	c.state.Store(int32(StateClosed))
	return nil
}

// Close discards the draft.
func (c *Controller) Close() {
	c.state.Store(int32(StateClosed))
}

func (c *Controller) editable() error {
	switch c.State() {
	case StateClosed:
		return ErrClosed
	case StateCommitting:
		return ErrBusy
	default:
		return nil
	}
}

// revalidate issues an asynchronous run for the snapshot; a stale
// completion is discarded by the pipeline's generation guard.
func (c *Controller) revalidate(snapshot any) {
	c.state.Store(int32(StateValidating))
	c.pipeline.Run(snapshot)
}
