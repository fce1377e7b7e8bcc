package synclog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/portal-sync/internal/model"
)

type fakeAppender struct {
	mu      sync.Mutex
	entries []model.SyncLogEntry
	ctxErrs []error
	err     error
}

func (f *fakeAppender) AppendLog(ctx context.Context, entry *model.SyncLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestRecorder_Record(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRecorder(store, WithClock(func() time.Time { return at }))
	tenantID := uuid.New()

	r.Record(context.Background(), Entry{TenantID: &tenantID, Operation: model.OpCreated, ExternalID: "a"})

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.Equal(t, model.OutcomeSuccess, e.Outcome)
	assert.Equal(t, at, e.CreatedAt)
	assert.Equal(t, &tenantID, e.TenantID)
}

func TestRecorder_RecordSurvivesCancellation(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{}
	r := NewRecorder(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Record(ctx, Entry{Operation: model.OpCycle, Outcome: model.OutcomeFailure})

	require.Len(t, store.entries, 1)
	assert.NoError(t, store.ctxErrs[0])
}

func TestRecorder_AppendFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{err: errors.New("database down")}
	r := NewRecorder(store)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry{Operation: model.OpCycle})
	})
	assert.Empty(t, store.entries)
}

func TestRecorder_Time(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fnErr       error
		wantOutcome string
		wantDetail  string
	}{
		{name: "success", wantOutcome: model.OutcomeSuccess},
		{name: "failure", fnErr: errors.New("list failed"), wantOutcome: model.OutcomeFailure, wantDetail: "list failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &fakeAppender{}
			r := NewRecorder(store, WithClock(steppingClock(time.Unix(0, 0), 250*time.Millisecond)))

			err := r.Time(context.Background(), Entry{Operation: model.OpFolder, FolderName: "news"}, func() error {
				return tt.fnErr
			})
			assert.Equal(t, tt.fnErr, err)

			require.Len(t, store.entries, 1)
			e := store.entries[0]
			assert.Equal(t, tt.wantOutcome, e.Outcome)
			assert.Equal(t, tt.wantDetail, e.ErrorDetail)
			assert.Equal(t, 250*time.Millisecond, e.Duration)
		})
	}
}

func TestRecorder_NilStore(t *testing.T) {
	t.Parallel()

	r := NewRecorder(nil)
	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry{Operation: model.OpCycle, Outcome: model.OutcomeSkipped})
	})
}
