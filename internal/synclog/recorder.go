// Package synclog appends engine operations to the append-only sync log and
// mirrors each entry to the structured logger.
package synclog

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicportal/portal-sync/internal/model"
)

// DefaultAppendTimeout bounds a single append to the log store
const DefaultAppendTimeout = 5 * time.Second

// Entry is one sync log row
type Entry = model.SyncLogEntry

// Appender persists log entries
type Appender interface {
	AppendLog(ctx context.Context, entry *model.SyncLogEntry) error
}

// Recorder writes sync log entries. Failures to persist an entry are logged and
// never returned, so bookkeeping cannot fail the operation it describes.
type Recorder struct {
	store   Appender
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Recorder
type Option func(*Recorder)

// WithAppendTimeout sets the timeout of each append
func WithAppendTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.timeout = d
	}
}

// WithClock sets the time source used for timestamps and durations
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder. A nil store only mirrors entries to slog.
func NewRecorder(store Appender, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		timeout: DefaultAppendTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry. The append survives cancellation of ctx.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.Outcome == "" {
		entry.Outcome = model.OutcomeSuccess
	}

	r.mirror(ctx, &entry)

	if r.store == nil {
		return
	}
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.AppendLog(appendCtx, &entry); err != nil {
		slog.WarnContext(ctx, "Failed to append sync log entry",
			"operation", entry.Operation,
			"folder", entry.FolderName,
			"external_id", entry.ExternalID,
			"error", err)
	}
}

// Time runs fn, then records entry with the measured duration. The outcome is
// failure with the error detail when fn fails. fn's error is returned unchanged.
func (r *Recorder) Time(ctx context.Context, entry Entry, fn func() error) error {
	start := r.now()
	err := fn()
	entry.Duration = r.now().Sub(start)
	if err != nil {
		entry.Outcome = model.OutcomeFailure
		entry.ErrorDetail = err.Error()
	} else if entry.Outcome == "" {
		entry.Outcome = model.OutcomeSuccess
	}
	r.Record(ctx, entry)
	return err
}

func (*Recorder) mirror(ctx context.Context, entry *Entry) {
	attrs := []any{
		"operation", entry.Operation,
		"outcome", entry.Outcome,
	}
	if entry.TenantID != nil {
		attrs = append(attrs, "tenant_id", entry.TenantID.String())
	}
	if entry.FolderName != "" {
		attrs = append(attrs, "folder", entry.FolderName)
	}
	if entry.ExternalID != "" {
		attrs = append(attrs, "external_id", entry.ExternalID)
	}
	if entry.ItemName != "" {
		attrs = append(attrs, "item", entry.ItemName)
	}
	if entry.Duration > 0 {
		attrs = append(attrs, "duration", entry.Duration)
	}
	if entry.ErrorDetail != "" {
		attrs = append(attrs, "error", entry.ErrorDetail)
	}

	msg := entry.Message
	level := slog.LevelInfo
	switch entry.Outcome {
	case model.OutcomeFailure:
		level = slog.LevelWarn
		if msg == "" {
			msg = "Sync operation failed"
		}
	case model.OutcomeSkipped:
		level = slog.LevelDebug
		if msg == "" {
			msg = "Sync operation skipped"
		}
	default:
		if msg == "" {
			msg = "Sync operation completed"
		}
	}
	slog.Log(ctx, level, msg, attrs...)
}
