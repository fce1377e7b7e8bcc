// Package sourcetest provides an in-memory connector for exercising the sync
// pipeline without a provider.
package sourcetest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/sources"
)

// Connector is a mutable in-memory container store. It is safe for concurrent use.
type Connector struct {
	mu         sync.Mutex
	containers map[string]map[string]model.ItemRef
	content    map[string][]byte
	fetchErrs  map[string]error
	listErr    error

	fetches atomic.Int64
}

var _ sources.Connector = (*Connector)(nil)

// NewConnector creates an empty connector
func NewConnector() *Connector {
	return &Connector{
		containers: make(map[string]map[string]model.ItemRef),
		content:    make(map[string][]byte),
		fetchErrs:  make(map[string]error),
	}
}

// Put adds or replaces an item in a container
func (c *Connector) Put(containerID string, ref model.ItemRef, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, ok := c.containers[containerID]
	if !ok {
		items = make(map[string]model.ItemRef)
		c.containers[containerID] = items
	}
	items[ref.ExternalID] = ref
	c.content[ref.ExternalID] = content
}

// PutFile adds a metadata-only item modified at the given time
func (c *Connector) PutFile(containerID, id, name string, modified time.Time) {
	c.Put(containerID, model.ItemRef{
		ExternalID:   id,
		Name:         name,
		Kind:         model.KindPDF,
		MimeType:     "application/pdf",
		LastModified: modified,
		Size:         1024,
	}, nil)
}

// Remove deletes an item from a container
func (c *Connector) Remove(containerID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.containers[containerID], id)
	delete(c.content, id)
}

// FailFetch makes every fetch of id fail with err. A nil err clears the failure.
func (c *Connector) FailFetch(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		delete(c.fetchErrs, id)
		return
	}
	c.fetchErrs[id] = err
}

// FailList makes every listing fail with err. A nil err clears the failure.
func (c *Connector) FailList(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

// Fetches returns the number of Fetch calls so far
func (c *Connector) Fetches() int {
	return int(c.fetches.Load())
}

// List returns the container's items ordered by external ID
func (c *Connector) List(ctx context.Context, containerID string) ([]model.ItemRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listErr != nil {
		return nil, c.listErr
	}
	items, ok := c.containers[containerID]
	if !ok {
		return nil, &sources.ConfigError{ContainerID: containerID, Reason: "container not found"}
	}

	refs := make([]model.ItemRef, 0, len(items))
	for _, ref := range items {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ExternalID < refs[j].ExternalID })
	return refs, nil
}

// Fetch returns the stored content of an item
func (c *Connector) Fetch(ctx context.Context, ref model.ItemRef) (*model.RawItem, error) {
	c.fetches.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.fetchErrs[ref.ExternalID]; ok {
		return nil, err
	}
	content, ok := c.content[ref.ExternalID]
	if !ok {
		return nil, &sources.NotFoundError{ExternalID: ref.ExternalID}
	}
	return &model.RawItem{Ref: ref, Content: append([]byte(nil), content...)}, nil
}

// Factory hands out connectors by source type
type Factory struct {
	Connectors map[string]sources.Connector
	Errs       map[string]error
}

var _ sources.Factory = (*Factory)(nil)

// NewFactory creates a Factory serving conn for the given source type
func NewFactory(source string, conn sources.Connector) *Factory {
	return &Factory{
		Connectors: map[string]sources.Connector{source: conn},
		Errs:       map[string]error{},
	}
}

// Create returns the configured connector or error for source
func (f *Factory) Create(_ context.Context, _ *config.Config, _ *model.Tenant, source string) (sources.Connector, error) {
	if err, ok := f.Errs[source]; ok {
		return nil, err
	}
	conn, ok := f.Connectors[source]
	if !ok {
		return nil, &sources.ConfigError{Reason: "unsupported source type " + source}
	}
	return conn, nil
}
