package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/civicportal/portal-sync/internal/model"
)

// Connector lists and fetches items from an external container
type Connector interface {
	// List returns every item currently in the container, in no particular order.
	// A missing or inaccessible container yields a *ConfigError.
	List(ctx context.Context, containerID string) ([]model.ItemRef, error)

	// Fetch retrieves the content of one listed item. Items whose kind does not
	// carry content are returned with metadata only.
	Fetch(ctx context.Context, ref model.ItemRef) (*model.RawItem, error)
}

// SortItems orders a listing newest first, breaking ties by external ID
func SortItems(items []model.ItemRef) {
	slices.SortStableFunc(items, func(a, b model.ItemRef) int {
		if c := b.LastModified.Compare(a.LastModified); c != 0 {
			return c
		}
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
