package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"iddesk.org/internal/directory"
	"iddesk.org/internal/kv"
)

type fakeValidator struct {
	ok  bool
	err error
}

func (f *fakeValidator) ValidateToken(ctx context.Context, token string) (bool, error) {
	return f.ok, f.err
}

// manualScheduler captures armed timers so tests fire them deterministically.
type manualScheduler struct {
	mu    sync.Mutex
	armed []struct {
		d  time.Duration
		fn func()
	}
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = append(m.armed, struct {
		d  time.Duration
		fn func()
	}{d, fn})
}

func (m *manualScheduler) fireAll() {
	m.mu.Lock()
	timers := m.armed
	m.armed = nil
	m.mu.Unlock()
	for _, tm := range timers {
		tm.fn()
	}
}

func (m *manualScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.armed)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []string
}

func (n *noticeRecorder) Notify(class NoticeClass, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, string(class)+": "+message)
}

func (n *noticeRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func loggedInStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(kv.NewMemory())
	token := testToken(t, `{"sub":"op@example.org","email":"op@example.org"}`)
	if _, err := s.SetSession(context.Background(), token, directory.Profile{Mail: "op@example.org"}, nil); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	return s
}

func TestRejectedTokenNoticesThenClearsAfterGrace(t *testing.T) {
	store := loggedInStore(t)
	sched := &manualScheduler{}
	notices := &noticeRecorder{}
	redirects := 0

	g := NewGuard(&fakeValidator{ok: false}, store,
		WithNotifier(notices),
		WithScheduler(sched.schedule),
		WithRedirect(func() { redirects++ }),
		WithGraceDelay(3*time.Second),
	)

	res := g.EnsureValid(context.Background())
	if res.Valid {
		t.Fatalf("rejected token reported valid")
	}
	if notices.count() != 1 {
		t.Fatalf("notices = %d, want exactly one", notices.count())
	}
	if sched.count() != 1 {
		t.Fatalf("armed timers = %d, want one", sched.count())
	}
	// Until the grace delay elapses the session is still present.
	if store.Token() == "" {
		t.Fatalf("session cleared before the grace delay")
	}
	if redirects != 0 {
		t.Fatalf("redirected before the grace delay")
	}

	sched.fireAll()
	if store.Token() != "" {
		t.Fatalf("session not cleared after the grace delay")
	}
	if redirects != 1 {
		t.Fatalf("redirects = %d, want exactly one", redirects)
	}
}

func TestValidatorErrorFailsClosed(t *testing.T) {
	store := loggedInStore(t)
	sched := &manualScheduler{}
	g := NewGuard(&fakeValidator{err: errors.New("backend down")}, store,
		WithScheduler(sched.schedule),
	)
	if res := g.EnsureValid(context.Background()); res.Valid {
		t.Fatalf("a failing validation call must count as invalid")
	}
	if sched.count() != 1 {
		t.Fatalf("fail-closed rejection must still arm the logout timer")
	}
}

func TestEmptyTokenIsInvalidWithoutBackendCall(t *testing.T) {
	store := NewStore(kv.NewMemory())
	sched := &manualScheduler{}
	g := NewGuard(&fakeValidator{ok: true}, store, WithScheduler(sched.schedule))
	if res := g.EnsureValid(context.Background()); res.Valid {
		t.Fatalf("an empty token must be invalid")
	}
}

func TestValidTokenPassesQuietly(t *testing.T) {
	store := loggedInStore(t)
	sched := &manualScheduler{}
	notices := &noticeRecorder{}
	g := NewGuard(&fakeValidator{ok: true}, store,
		WithNotifier(notices),
		WithScheduler(sched.schedule),
	)
	if res := g.EnsureValid(context.Background()); !res.Valid {
		t.Fatalf("valid token reported invalid")
	}
	if notices.count() != 0 || sched.count() != 0 {
		t.Fatalf("a valid check must not notice or arm timers")
	}
}

func TestStaleTimerNeverClearsANewerSession(t *testing.T) {
	store := loggedInStore(t)
	sched := &manualScheduler{}
	redirects := 0
	g := NewGuard(&fakeValidator{ok: false}, store,
		WithScheduler(sched.schedule),
		WithRedirect(func() { redirects++ }),
	)

	g.EnsureValid(context.Background())
	if sched.count() != 1 {
		t.Fatalf("expected an armed timer")
	}

	// A fresh login lands before the timer fires.
	newToken := testToken(t, `{"sub":"other@example.org","email":"other@example.org"}`)
	if _, err := store.SetSession(context.Background(), newToken, directory.Profile{Mail: "other@example.org"}, nil); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	sched.fireAll()
	if store.Token() != newToken {
		t.Fatalf("stale timer cleared the newer session")
	}
	if redirects != 0 {
		t.Fatalf("stale timer redirected")
	}
}

func TestTimerFiresOnlyOncePerRejection(t *testing.T) {
	store := loggedInStore(t)
	sched := &manualScheduler{}
	redirects := 0
	g := NewGuard(&fakeValidator{ok: false}, store,
		WithScheduler(sched.schedule),
		WithRedirect(func() { redirects++ }),
	)

	g.EnsureValid(context.Background())
	g.EnsureValid(context.Background())
	// Two rejections, two timers; the first to fire clears, the second sees
	// a bumped generation and does nothing.
	sched.fireAll()
	if redirects != 1 {
		t.Fatalf("redirects = %d, want exactly one", redirects)
	}
	if store.Token() != "" {
		t.Fatalf("session should stay cleared")
	}
}
