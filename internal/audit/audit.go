// Package audit appends immutable security-relevant records through the
// persistence collaborator. Auditing is a best-effort side channel: a failed
// write is logged and swallowed, never surfaced to the action that triggered
// it.
package audit

import (
	"context"
	"net/http"
	"time"

	"aerobaza.org/internal/ids"
	"aerobaza.org/internal/obs"
	"aerobaza.org/internal/ratelimit"
)

// Entry is one append-only audit record. Never updated or deleted here; the
// store owns the data.
type Entry struct {
	ID         string
	UserID     string // empty for anonymous actions
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// Store is the single persistence operation this package needs.
type Store interface {
	AppendAuditLog(ctx context.Context, entry *Entry) error
}

const defaultWriteTimeout = 3 * time.Second

// Writer records entries after successful mutations.
type Writer struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriteTimeout bounds the store call.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) WriterOption {
	return func(w *Writer) {
		if fn != nil {
			w.now = fn
		}
	}
}

// NewWriter constructs the audit writer over the given store.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{store: store, timeout: defaultWriteTimeout, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends one entry, deriving ip/user-agent from the request when
// present. It never returns an error and never panics the caller: a missing
// audit entry is an accepted failure mode, a failed business action is not.
// The caller's context is honored so an abandoned request cancels the write.
func (w *Writer) Record(ctx context.Context, entry Entry, r *http.Request) {
	if entry.Action == "" || entry.EntityType == "" {
		obs.LogRequest(map[string]any{
			"ts":    w.now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "audit_entry_dropped",
			"error": "action and entity type are required",
		})
		return
	}

	if r != nil {
		entry.IPAddress = ratelimit.ClientIP(r)
		entry.UserAgent = r.Header.Get("User-Agent")
	}
	entry.ID = ids.New()
	entry.CreatedAt = w.now().UTC()

	writeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.store.AppendAuditLog(writeCtx, &entry); err != nil {
		obs.LogRequest(map[string]any{
			"ts":     w.now().UTC().Format(time.RFC3339Nano),
			"level":  "error",
			"msg":    "audit_write_failed",
			"action": entry.Action,
			"entity": entry.EntityType,
			"error":  err.Error(),
		})
	}
}
