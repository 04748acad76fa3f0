// Package audit records operator actions taken through the console:
// logins, forced logouts, and committed changes to users and roles.
package audit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"iddesk.org/internal/ids"
	"iddesk.org/internal/obs"
)

// Entry is one append-only audit record.
type Entry struct {
	ID           string            `json:"id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Actor        string            `json:"actor"`
	Organization string            `json:"organization"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// Recorder appends entries to a durable trail.
type Recorder interface {
	Append(ctx context.Context, entry *Entry) error
}

// Trail writes entries to a Recorder and mirrors them to the log. A nil
// Recorder keeps the log mirror only.
type Trail struct {
	recorder Recorder
	now      func() time.Time
}

// TrailOption configures Trail.
type TrailOption func(*Trail)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) TrailOption {
	return func(t *Trail) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTrail builds a Trail over the given recorder.
func NewTrail(recorder Recorder, opts ...TrailOption) *Trail {
	t := &Trail{recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends one action. Entries without an action name are dropped.
// Recorder failures are logged, not fatal: the operator's change already
// happened by the time the trail is written.
func (t *Trail) Record(ctx context.Context, entry Entry) {
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		obs.Logger().Error("audit entry without action dropped")
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = t.now().UTC()
	}

	obs.Logger().Info("audit",
		zap.String("audit_id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("actor", entry.Actor),
		zap.String("organization", entry.Organization),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
	)

	if t.recorder == nil {
		return
	}
	if err := t.recorder.Append(ctx, &entry); err != nil {
		obs.Logger().Error("audit append failed",
			zap.String("audit_id", entry.ID),
			zap.Error(err))
	}
}
