package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/sync/retry"
)

// ChangeKind classifies a listed or stored item against the other side
type ChangeKind string

const (
	// ChangeNew is a listed item without a stored record
	ChangeNew ChangeKind = "new"
	// ChangeChanged is a listed item whose record must be refreshed
	ChangeChanged ChangeKind = "changed"
	// ChangeUnchanged is a listed item that needs no fetch, parse or write
	ChangeUnchanged ChangeKind = "unchanged"
	// ChangeRemoved is a stored live record whose item is no longer listed
	ChangeRemoved ChangeKind = "removed"
)

// Change is the classification of one item
type Change struct {
	Kind ChangeKind

	// Ref is the listing entry; zero for removals
	Ref model.ItemRef

	// Record is the stored record; nil for new items
	Record *model.Record

	// Fingerprint of the listed item; empty for removals
	Fingerprint string
}

// ExternalID returns the identity of the changed item
func (c Change) ExternalID() string {
	if c.Kind == ChangeRemoved {
		return c.Record.ExternalID
	}
	return c.Ref.ExternalID
}

// Fingerprint identifies the listed state of an item. Two listings of unchanged
// content produce the same fingerprint.
func Fingerprint(ref model.ItemRef) string {
	modified := ""
	if !ref.LastModified.IsZero() {
		modified = ref.LastModified.UTC().Format(time.RFC3339Nano)
	}
	parts := []string{
		ref.ExternalID,
		string(ref.Kind),
		modified,
		strconv.FormatInt(ref.Size, 10),
		ref.Checksum,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Detector classifies a listing against the stored records of a folder
type Detector struct {
	Policy retry.Policy
}

// Classify returns one change per listed item plus one per live record that is
// no longer listed. Listed items keep the listing order, which callers sort newest
// first; removals follow, ordered by external ID. Deleted records that stay
// unlisted produce nothing, and a repeated external ID keeps its first listing.
func (d Detector) Classify(listed []model.ItemRef, stored map[string]*model.Record) []Change {
	changes := make([]Change, 0, len(listed))
	seen := make(map[string]struct{}, len(listed))

	for _, ref := range listed {
		if _, dup := seen[ref.ExternalID]; dup {
			continue
		}
		seen[ref.ExternalID] = struct{}{}

		rec := stored[ref.ExternalID]
		fp := Fingerprint(ref)

		kind := ChangeChanged
		switch {
		case rec == nil:
			kind = ChangeNew
		case !d.Policy.ShouldAttempt(rec, fp):
			kind = ChangeUnchanged
		}
		changes = append(changes, Change{Kind: kind, Ref: ref, Record: rec, Fingerprint: fp})
	}

	var removed []Change
	for id, rec := range stored {
		if _, ok := seen[id]; ok || rec.Status == model.StatusDeleted {
			continue
		}
		removed = append(removed, Change{Kind: ChangeRemoved, Record: rec})
	}
	slices.SortFunc(removed, func(a, b Change) int {
		return strings.Compare(a.Record.ExternalID, b.Record.ExternalID)
	})

	return append(changes, removed...)
}

// Summary counts changes by kind
type Summary struct {
	New       int
	Changed   int
	Unchanged int
	Removed   int
}

// Summarize counts a classification
func Summarize(changes []Change) Summary {
	var s Summary
	for _, c := range changes {
		switch c.Kind {
		case ChangeNew:
			s.New++
		case ChangeChanged:
			s.Changed++
		case ChangeUnchanged:
			s.Unchanged++
		case ChangeRemoved:
			s.Removed++
		}
	}
	return s
}
