package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

type recordKey struct {
	tenantID   uuid.UUID
	folder     string
	externalID string
}

type folderKey struct {
	tenantID uuid.UUID
	folder   string
}

// memoryStore keeps all state in process memory behind one mutex.
// Every method copies values in and out so callers never share state with the store.
type memoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*model.Tenant
	folders map[folderKey]*model.FolderConfig
	records map[recordKey]*model.Record
	logs    []*model.SyncLogEntry
	nextID  int64
	nextLog int64
	now     func() time.Time
}

var _ Store = (*memoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		tenants: make(map[uuid.UUID]*model.Tenant),
		folders: make(map[folderKey]*model.FolderConfig),
		records: make(map[recordKey]*model.Record),
		now:     time.Now,
	}
}

func (*memoryStore) Ping(context.Context) error {
	return nil
}

func (*memoryStore) Close() {}

func (m *memoryStore) ListRecords(_ context.Context, tenantID uuid.UUID, folder string) (map[string]*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*model.Record)
	for key, rec := range m.records {
		if key.tenantID == tenantID && key.folder == folder {
			result[key.externalID] = rec.Clone()
		}
	}
	return result, nil
}

func (m *memoryStore) Upsert(_ context.Context, params UpsertParams) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{params.TenantID, params.FolderName, params.ExternalID}
	rec, ok := m.records[key]
	if !ok {
		m.nextID++
		rec = &model.Record{
			ID:          m.nextID,
			TenantID:    params.TenantID,
			FolderName:  params.FolderName,
			ExternalID:  params.ExternalID,
			FirstSeenAt: params.AttemptedAt,
		}
		m.records[key] = rec
	}

	attempted := params.AttemptedAt
	rec.Name = params.Name
	rec.Kind = params.Kind
	rec.Payload = append([]byte(nil), params.Payload...)
	rec.Fragment = params.Fragment
	rec.FragmentTemplate = params.FragmentTemplate
	rec.Fingerprint = params.Fingerprint
	rec.AttemptFingerprint = ""
	rec.Status = model.StatusActive
	rec.ErrorDetail = ""
	rec.RetryCount = 0
	rec.LastChangedAt = changedAt(params.LastModified, params.AttemptedAt)
	rec.LastAttemptedAt = &attempted

	return rec.Clone(), nil
}

func (m *memoryStore) MarkRemoved(_ context.Context, tenantID uuid.UUID, folder, externalID string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordKey{tenantID, folder, externalID}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec.Status = model.StatusDeleted
	return rec.Clone(), nil
}

func (m *memoryStore) MarkError(_ context.Context, params MarkErrorParams) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{params.TenantID, params.FolderName, params.ExternalID}
	rec, ok := m.records[key]
	if !ok {
		m.nextID++
		rec = &model.Record{
			ID:            m.nextID,
			TenantID:      params.TenantID,
			FolderName:    params.FolderName,
			ExternalID:    params.ExternalID,
			Name:          params.Name,
			Kind:          params.Kind,
			FirstSeenAt:   params.AttemptedAt,
			LastChangedAt: params.AttemptedAt,
		}
		m.records[key] = rec
	}

	if ok && rec.AttemptFingerprint == params.Fingerprint {
		rec.RetryCount++
	} else {
		rec.RetryCount = 1
	}

	attempted := params.AttemptedAt
	rec.Status = model.StatusError
	rec.ErrorDetail = params.ErrorDetail
	rec.AttemptFingerprint = params.Fingerprint
	rec.LastAttemptedAt = &attempted

	return rec.Clone(), nil
}

func (m *memoryStore) ActiveRecords(_ context.Context, tenantID uuid.UUID, folder string) ([]*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.Record
	for key, rec := range m.records {
		if key.tenantID == tenantID && key.folder == folder && rec.Status == model.StatusActive {
			result = append(result, rec.Clone())
		}
	}
	sortActive(result)
	return result, nil
}

func sortActive(records []*model.Record) {
	slices.SortFunc(records, func(a, b *model.Record) int {
		if c := b.LastChangedAt.Compare(a.LastChangedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})
}

func (m *memoryStore) ListTenants(_ context.Context, enabledOnly bool) ([]*model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*model.Tenant
	for _, t := range m.tenants {
		if enabledOnly && !t.Enabled {
			continue
		}
		c := *t
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *model.Tenant) int { return cmp.Compare(a.Key, b.Key) })
	return result, nil
}

func (m *memoryStore) GetTenant(_ context.Context, key string) (*model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tenants {
		if t.Key == key {
			c := *t
			return &c, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (m *memoryStore) ListFolders(_ context.Context, tenantID uuid.UUID, enabledOnly bool) ([]*model.FolderConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tenants[tenantID]; !ok {
		return nil, ErrTenantNotFound
	}

	var result []*model.FolderConfig
	for key, f := range m.folders {
		if key.tenantID != tenantID || (enabledOnly && !f.Enabled) {
			continue
		}
		c := *f
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *model.FolderConfig) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (m *memoryStore) TouchTenant(_ context.Context, tenantID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	t.LastSyncedAt = &at
	return nil
}

func (m *memoryStore) TouchFolder(_ context.Context, tenantID uuid.UUID, folder string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.folders[folderKey{tenantID, folder}]
	if !ok {
		return ErrTenantNotFound
	}
	f.LastCheckedAt = &at
	return nil
}

func (m *memoryStore) SeedTenants(_ context.Context, tenants []config.TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := make(map[string]*model.Tenant, len(m.tenants))
	for _, t := range m.tenants {
		byKey[t.Key] = t
	}

	for i := range tenants {
		tc := &tenants[i]
		t, ok := byKey[tc.Key]
		if !ok {
			t = &model.Tenant{ID: uuid.New(), Key: tc.Key}
			m.tenants[t.ID] = t
			byKey[t.Key] = t
		}
		t.Name = tc.Name
		t.OutputPath = tc.OutputPath
		t.Enabled = tc.IsEnabled()
		t.CredentialsFile = tc.CredentialsFile

		for j := range tc.Folders {
			fc := &tc.Folders[j]
			key := folderKey{t.ID, fc.Name}
			f, ok := m.folders[key]
			if !ok {
				f = &model.FolderConfig{TenantID: t.ID, Name: fc.Name}
				m.folders[key] = f
			}
			f.Source = fc.Source
			f.ContainerID = fc.ContainerID
			f.Template = fc.GetTemplate()
			f.Enabled = fc.IsEnabled()
		}
	}
	return nil
}

func (m *memoryStore) AppendLog(_ context.Context, entry *model.SyncLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLog++
	c := *entry
	c.ID = m.nextLog
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.logs = append(m.logs, &c)
	entry.ID = c.ID
	entry.CreatedAt = c.CreatedAt
	return nil
}

func (m *memoryStore) RecentLogs(_ context.Context, filter LogFilter) ([]*model.SyncLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tenantID *uuid.UUID
	if filter.TenantKey != "" {
		for _, t := range m.tenants {
			if t.Key == filter.TenantKey {
				id := t.ID
				tenantID = &id
			}
		}
		if tenantID == nil {
			return nil, ErrTenantNotFound
		}
	}

	var result []*model.SyncLogEntry
	for i := len(m.logs) - 1; i >= 0 && len(result) < filter.limit(); i-- {
		e := m.logs[i]
		if tenantID != nil && (e.TenantID == nil || *e.TenantID != *tenantID) {
			continue
		}
		if filter.FailuresOnly && e.Outcome != model.OutcomeFailure {
			continue
		}
		c := *e
		result = append(result, &c)
	}
	return result, nil
}

func (m *memoryStore) FolderStats(_ context.Context, maxRetries int) ([]model.FolderStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[folderKey]*model.FolderStats)
	for key, f := range m.folders {
		t := m.tenants[key.tenantID]
		stats[key] = &model.FolderStats{
			TenantKey:     t.Key,
			FolderName:    f.Name,
			Enabled:       f.Enabled && t.Enabled,
			LastCheckedAt: f.LastCheckedAt,
		}
	}

	for key, rec := range m.records {
		s, ok := stats[folderKey{key.tenantID, key.folder}]
		if !ok {
			continue
		}
		switch rec.Status {
		case model.StatusActive:
			s.Active++
		case model.StatusDeleted:
			s.Deleted++
		case model.StatusError, model.StatusProcessing:
			s.Errors++
			if rec.Status == model.StatusError && rec.RetryCount > maxRetries {
				s.Terminal++
			}
		}
	}

	result := make([]model.FolderStats, 0, len(stats))
	for _, s := range stats {
		result = append(result, *s)
	}
	slices.SortFunc(result, func(a, b model.FolderStats) int {
		return cmp.Or(cmp.Compare(a.TenantKey, b.TenantKey), cmp.Compare(a.FolderName, b.FolderName))
	})
	return result, nil
}

func (m *memoryStore) ErrorRecords(_ context.Context, limit int) ([]ErrorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ErrorRecord
	for key, rec := range m.records {
		if rec.Status != model.StatusError {
			continue
		}
		result = append(result, ErrorRecord{TenantKey: m.tenants[key.tenantID].Key, Record: rec.Clone()})
	}
	slices.SortFunc(result, func(a, b ErrorRecord) int {
		var at, bt time.Time
		if a.LastAttemptedAt != nil {
			at = *a.LastAttemptedAt
		}
		if b.LastAttemptedAt != nil {
			bt = *b.LastAttemptedAt
		}
		return cmp.Or(bt.Compare(at), cmp.Compare(a.ExternalID, b.ExternalID))
	})
	if limit = listLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
