package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"iddesk.org/internal/directory"
	"iddesk.org/internal/obs"
)

const expiredNotice = "Your session is no longer valid. You will be redirected to the login page in a few seconds."

// CheckResult is the outcome of one lifecycle check. Invalid is terminal
// for that check; a later call starts a fresh evaluation.
type CheckResult struct {
	Valid bool
}

// Guard gates privileged operations on token validity. Callers must invoke
// EnsureValid before any mutating operation and before initial data load,
// and abort when the result is invalid.
type Guard struct {
	validator directory.TokenValidator
	sessions  *Store
	notifier  Notifier
	toLogin   func()
	grace     time.Duration

	// schedule defaults to time.AfterFunc; tests swap it for a manual clock.
	schedule func(d time.Duration, fn func())
}

// GuardOption configures Guard behavior.
type GuardOption func(*Guard)

// WithNotifier sets where user-facing notices go.
func WithNotifier(n Notifier) GuardOption {
	return func(g *Guard) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithRedirect sets the navigation hook fired after a forced logout.
func WithRedirect(fn func()) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.toLogin = fn
		}
	}
}

// WithGraceDelay overrides how long the notice stays up before the session
// is cleared.
func WithGraceDelay(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.grace = d
		}
	}
}

// WithScheduler overrides the timer used for the grace delay.
func WithScheduler(fn func(d time.Duration, f func())) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.schedule = fn
		}
	}
}

// SetNotifier replaces the notice sink. Call before the guard starts
// serving checks; it is not synchronized against EnsureValid.
func (g *Guard) SetNotifier(n Notifier) {
	if n != nil {
		g.notifier = n
	}
}

// NewGuard constructs a Guard around the session store and the external
// token validator.
func NewGuard(validator directory.TokenValidator, sessions *Store, opts ...GuardOption) *Guard {
	g := &Guard{
		validator: validator,
		sessions:  sessions,
		notifier:  NopNotifier,
		toLogin:   func() {},
		grace:     3 * time.Second,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureValid sends the current token to the validator. On rejection it
// emits a notice, arms the grace-delay logout timer and reports invalid so
// the caller aborts. A failing validation call counts as invalid: the gate
// fails closed.
func (g *Guard) EnsureValid(ctx context.Context) CheckResult {
	token := g.sessions.Token()
	if token == "" {
		obs.TokenCheck("invalid")
		g.reject()
		return CheckResult{Valid: false}
	}

	ok, err := g.validator.ValidateToken(ctx, token)
	if err != nil {
		obs.TokenCheck("error")
		obs.Logger().Warn("token validation call failed, treating as invalid",
			zap.Error(err))
		g.reject()
		return CheckResult{Valid: false}
	}
	if !ok {
		obs.TokenCheck("invalid")
		g.reject()
		return CheckResult{Valid: false}
	}
	obs.TokenCheck("valid")
	return CheckResult{Valid: true}
}

// reject emits the notice and schedules the deferred logout. The timer
// captures the session generation it was armed for: if a new session is
// established (or the session is cleared some other way) before it fires,
// firing is a no-op and never clears the newer session.
func (g *Guard) reject() {
	g.notifier.Notify(NoticeInfo, expiredNotice)
	gen := g.sessions.Generation()
	g.schedule(g.grace, func() {
		if g.sessions.Generation() != gen {
			return
		}
		if err := g.sessions.Clear(context.Background()); err != nil {
			obs.Logger().Error("clearing rejected session failed", zap.Error(err))
			return
		}
		obs.ForcedLogout()
		g.toLogin()
	})
}
