package sources

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

// ConnectorSet hands out one connector per source type for a tenant during a
// cycle. Creation errors are remembered so a broken source is reported once per
// folder without being rebuilt. A ConnectorSet is not safe for concurrent use.
type ConnectorSet struct {
	factory Factory
	cfg     *config.Config
	tenant  *model.Tenant
	conns   map[string]Connector
	errs    map[string]error
}

// NewConnectorSet creates an empty set bound to a configuration snapshot and tenant
func NewConnectorSet(factory Factory, cfg *config.Config, tenant *model.Tenant) *ConnectorSet {
	return &ConnectorSet{
		factory: factory,
		cfg:     cfg,
		tenant:  tenant,
		conns:   make(map[string]Connector),
		errs:    make(map[string]error),
	}
}

// Get returns the connector for a source type, creating it on first use
func (s *ConnectorSet) Get(ctx context.Context, source string) (Connector, error) {
	if c, ok := s.conns[source]; ok {
		return c, nil
	}
	if err, ok := s.errs[source]; ok {
		return nil, err
	}

	c, err := s.factory.Create(ctx, s.cfg, s.tenant, source)
	if err != nil {
		s.errs[source] = err
		return nil, err
	}
	s.conns[source] = c
	return c, nil
}

// Close releases connectors holding resources, such as in-memory clones
func (s *ConnectorSet) Close() error {
	var errs []error
	for source, c := range s.conns {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", source, err))
			}
		}
	}
	clear(s.conns)
	return errors.Join(errs...)
}
