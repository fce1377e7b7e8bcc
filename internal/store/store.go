// Package store persists tenants, folder configurations, canonical records and
// the sync log.
//
// Every write is a single statement or a single transaction, so a record is
// never left half-updated. Two backends share the same semantics: PostgreSQL
// for production and an in-memory map for tests and single-process runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

var (
	// ErrRecordNotFound is returned when a record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrTenantNotFound is returned when a tenant does not exist
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrUnavailable wraps connection-level failures of the backend
	ErrUnavailable = errors.New("store unavailable")
)

// UpsertParams describes a successful processing of one item
type UpsertParams struct {
	TenantID    uuid.UUID
	FolderName  string
	ExternalID  string
	Name        string
	Kind        model.Kind
	Payload     json.RawMessage
	Fingerprint string

	// Fragment is the card rendered with the folder template FragmentTemplate
	Fragment         string
	FragmentTemplate string

	// LastModified becomes last_changed_at; AttemptedAt is used when it is zero
	LastModified time.Time
	AttemptedAt  time.Time
}

// MarkErrorParams describes a failed attempt at one item
type MarkErrorParams struct {
	TenantID    uuid.UUID
	FolderName  string
	ExternalID  string
	Name        string
	Kind        model.Kind
	Fingerprint string
	ErrorDetail string
	AttemptedAt time.Time
}

// RecordStore persists canonical records
type RecordStore interface {
	// ListRecords returns every record of a folder keyed by external ID, deleted ones included
	ListRecords(ctx context.Context, tenantID uuid.UUID, folder string) (map[string]*model.Record, error)

	// Upsert stores a successfully processed item as active, clearing any error state.
	// Applying the same params twice yields the same end state.
	Upsert(ctx context.Context, params UpsertParams) (*model.Record, error)

	// MarkRemoved soft-deletes a record, keeping every other column
	MarkRemoved(ctx context.Context, tenantID uuid.UUID, folder, externalID string) (*model.Record, error)

	// MarkError records a failed attempt. The retry count grows while the same
	// content keeps failing and restarts at 1 for new content.
	MarkError(ctx context.Context, params MarkErrorParams) (*model.Record, error)

	// ActiveRecords returns the active records of a folder, newest change first,
	// ties broken by external ID
	ActiveRecords(ctx context.Context, tenantID uuid.UUID, folder string) ([]*model.Record, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}

// TenantStore reads tenants and folder configurations
type TenantStore interface {
	// ListTenants returns tenants ordered by key
	ListTenants(ctx context.Context, enabledOnly bool) ([]*model.Tenant, error)

	// GetTenant returns a tenant by key
	GetTenant(ctx context.Context, key string) (*model.Tenant, error)

	// ListFolders returns the folders of a tenant ordered by name
	ListFolders(ctx context.Context, tenantID uuid.UUID, enabledOnly bool) ([]*model.FolderConfig, error)

	// TouchTenant sets the tenant's last successful pass time
	TouchTenant(ctx context.Context, tenantID uuid.UUID, at time.Time) error

	// TouchFolder sets the folder's last check time
	TouchFolder(ctx context.Context, tenantID uuid.UUID, folder string, at time.Time) error

	// SeedTenants upserts tenants by key and their folders by name. Nothing is deleted.
	SeedTenants(ctx context.Context, tenants []config.TenantConfig) error
}

// LogFilter selects sync log entries
type LogFilter struct {
	TenantKey    string
	FailuresOnly bool
	Limit        int
}

// SyncLogStore appends to and reads the sync log. Entries are never updated or deleted.
type SyncLogStore interface {
	AppendLog(ctx context.Context, entry *model.SyncLogEntry) error

	// RecentLogs returns entries newest first
	RecentLogs(ctx context.Context, filter LogFilter) ([]*model.SyncLogEntry, error)
}

// ErrorRecord is a record in error together with its tenant key
type ErrorRecord struct {
	TenantKey string
	*model.Record
}

// StatsStore backs the operator status views
type StatsStore interface {
	// FolderStats returns per-folder record counts. Error records whose retry count
	// exceeds maxRetries are counted as terminal.
	FolderStats(ctx context.Context, maxRetries int) ([]model.FolderStats, error)

	// ErrorRecords returns records in error, most recently attempted first
	ErrorRecords(ctx context.Context, limit int) ([]ErrorRecord, error)
}

// Store is the full persistence gateway
type Store interface {
	RecordStore
	TenantStore
	SyncLogStore
	StatsStore

	// Close releases backend resources
	Close()
}

const defaultLogLimit = 50

func (f LogFilter) limit() int {
	return listLimit(f.Limit)
}

// listLimit caps unbounded listings of the log and error views
func listLimit(limit int) int {
	if limit <= 0 {
		return defaultLogLimit
	}
	return limit
}

func changedAt(lastModified, attemptedAt time.Time) time.Time {
	if lastModified.IsZero() {
		return attemptedAt
	}
	return lastModified
}
