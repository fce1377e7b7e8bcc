// Package retry decides when a failed record is attempted again.
//
// Failed records are never retried within a cycle. A record in error is picked
// up again on the next cycle until its consecutive failure count exceeds the
// configured maximum; from then on it stays in error until its source content
// changes.
package retry

import (
	"errors"
	"fmt"

	"github.com/civicportal/portal-sync/internal/model"
)

// Event drives a record's status transitions
type Event string

const (
	// EventAttempt starts processing a new or changed item
	EventAttempt Event = "attempt"
	// EventSucceed completes an attempt
	EventSucceed Event = "succeed"
	// EventFail records a failed attempt
	EventFail Event = "fail"
	// EventRemove records that the item left its source
	EventRemove Event = "remove"
)

// ErrInvalidTransition is returned for an event the current status does not accept
var ErrInvalidTransition = errors.New("invalid status transition")

// Policy bounds consecutive failed attempts of the same content
type Policy struct {
	MaxRetries int
}

// Exhausted reports whether a record with this retry count is in terminal error
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount > p.MaxRetries
}

// ShouldAttempt reports whether a listed item with the given fingerprint must be
// fetched and parsed against its stored record. A nil record is always attempted.
func (p Policy) ShouldAttempt(rec *model.Record, fingerprint string) bool {
	if rec == nil {
		return true
	}

	switch rec.Status {
	case model.StatusActive:
		return rec.Fingerprint != fingerprint
	case model.StatusError:
		if !p.Exhausted(rec.RetryCount) {
			return true
		}
		return rec.AttemptFingerprint != fingerprint
	default:
		// Deleted records reappeared; processing rows were left by an interrupted attempt
		return true
	}
}

// Transition returns the status reached from "from" on ev. An empty from
// status stands for an item without a stored record.
func (Policy) Transition(from model.RecordStatus, ev Event) (model.RecordStatus, error) {
	switch ev {
	case EventAttempt:
		switch from {
		case "", model.StatusActive, model.StatusError, model.StatusDeleted, model.StatusProcessing:
			return model.StatusProcessing, nil
		}
	case EventSucceed:
		if from == model.StatusProcessing {
			return model.StatusActive, nil
		}
	case EventFail:
		if from == model.StatusProcessing {
			return model.StatusError, nil
		}
	case EventRemove:
		switch from {
		case model.StatusActive, model.StatusError, model.StatusProcessing:
			return model.StatusDeleted, nil
		}
	}
	return from, fmt.Errorf("%w: %q on %s", ErrInvalidTransition, from, ev)
}
