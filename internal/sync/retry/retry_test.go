package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicportal/portal-sync/internal/model"
)

func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 3}
	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))

	assert.True(t, Policy{}.Exhausted(1), "zero retries means the first failure is terminal")
}

func TestPolicy_ShouldAttempt(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 3}

	tests := []struct {
		name   string
		record *model.Record
		fp     string
		want   bool
	}{
		{name: "new item", record: nil, fp: "x", want: true},
		{name: "active unchanged", record: &model.Record{Status: model.StatusActive, Fingerprint: "x"}, fp: "x", want: false},
		{name: "active changed", record: &model.Record{Status: model.StatusActive, Fingerprint: "x"}, fp: "y", want: true},
		{name: "deleted reappears", record: &model.Record{Status: model.StatusDeleted, Fingerprint: "x"}, fp: "x", want: true},
		{name: "stale processing", record: &model.Record{Status: model.StatusProcessing, Fingerprint: "x"}, fp: "x", want: true},
		{
			name:   "error with retries left",
			record: &model.Record{Status: model.StatusError, RetryCount: 3, AttemptFingerprint: "x"},
			fp:     "x",
			want:   true,
		},
		{
			name:   "error exhausted on same content",
			record: &model.Record{Status: model.StatusError, RetryCount: 4, AttemptFingerprint: "x"},
			fp:     "x",
			want:   false,
		},
		{
			name:   "error exhausted but content edited",
			record: &model.Record{Status: model.StatusError, RetryCount: 4, AttemptFingerprint: "x"},
			fp:     "y",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.ShouldAttempt(tt.record, tt.fp))
		})
	}
}

func TestPolicy_Transition(t *testing.T) {
	t.Parallel()

	var p Policy

	valid := []struct {
		from model.RecordStatus
		ev   Event
		to   model.RecordStatus
	}{
		{"", EventAttempt, model.StatusProcessing},
		{model.StatusActive, EventAttempt, model.StatusProcessing},
		{model.StatusError, EventAttempt, model.StatusProcessing},
		{model.StatusDeleted, EventAttempt, model.StatusProcessing},
		{model.StatusProcessing, EventSucceed, model.StatusActive},
		{model.StatusProcessing, EventFail, model.StatusError},
		{model.StatusActive, EventRemove, model.StatusDeleted},
		{model.StatusError, EventRemove, model.StatusDeleted},
		{model.StatusProcessing, EventRemove, model.StatusDeleted},
	}
	for _, tt := range valid {
		got, err := p.Transition(tt.from, tt.ev)
		require.NoError(t, err, "%q on %s", tt.from, tt.ev)
		assert.Equal(t, tt.to, got, "%q on %s", tt.from, tt.ev)
	}

	invalid := []struct {
		from model.RecordStatus
		ev   Event
	}{
		{model.StatusActive, EventSucceed},
		{model.StatusError, EventFail},
		{model.StatusDeleted, EventRemove},
		{"", EventRemove},
		{model.StatusActive, Event("bogus")},
	}
	for _, tt := range invalid {
		got, err := p.Transition(tt.from, tt.ev)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%q on %s", tt.from, tt.ev)
		assert.Equal(t, tt.from, got)
	}
}
