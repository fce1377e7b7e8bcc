package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
)

var recordColumnNames = []string{
	"id", "tenant_id", "folder_name", "external_id", "name", "kind", "payload", "fragment",
	"fragment_template", "fingerprint", "attempt_fingerprint", "status", "error_detail", "retry_count",
	"first_seen_at", "last_changed_at", "last_attempted_at",
}

var (
	recordColumns         = strings.Join(recordColumnNames, ", ")
	prefixedRecordColumns = "r." + strings.Join(recordColumnNames, ", r.")
)

const upsertRecordSQL = `
INSERT INTO sync_records (
    tenant_id, folder_name, external_id, name, kind, payload, fragment, fragment_template, fingerprint,
    attempt_fingerprint, status, error_detail, retry_count, first_seen_at, last_changed_at, last_attempted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', 'active', '', 0, $10, $11, $10)
ON CONFLICT (tenant_id, folder_name, external_id) DO UPDATE SET
    name                = EXCLUDED.name,
    kind                = EXCLUDED.kind,
    payload             = EXCLUDED.payload,
    fragment            = EXCLUDED.fragment,
    fragment_template   = EXCLUDED.fragment_template,
    fingerprint         = EXCLUDED.fingerprint,
    attempt_fingerprint = '',
    status              = 'active',
    error_detail        = '',
    retry_count         = 0,
    last_changed_at     = EXCLUDED.last_changed_at,
    last_attempted_at   = EXCLUDED.last_attempted_at
RETURNING `

const markErrorSQL = `
INSERT INTO sync_records (
    tenant_id, folder_name, external_id, name, kind, status, error_detail, retry_count,
    attempt_fingerprint, first_seen_at, last_changed_at, last_attempted_at
) VALUES ($1, $2, $3, $4, $5, 'error', $6, 1, $7, $8, $8, $8)
ON CONFLICT (tenant_id, folder_name, external_id) DO UPDATE SET
    status              = 'error',
    error_detail        = EXCLUDED.error_detail,
    retry_count         = CASE
                              WHEN sync_records.attempt_fingerprint = EXCLUDED.attempt_fingerprint
                              THEN sync_records.retry_count + 1
                              ELSE 1
                          END,
    attempt_fingerprint = EXCLUDED.attempt_fingerprint,
    last_attempted_at   = EXCLUDED.last_attempted_at
RETURNING `

// postgresStore implements Store on a pgx connection pool
type postgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*postgresStore)(nil)

// NewPostgresStore creates a database-backed store. The pool is owned by the store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (p *postgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *postgresStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// wrapErr classifies driver errors. Statement errors reported by the server are
// returned as is; anything else means the database could not be reached.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func scanRecord(row pgx.Row) (*model.Record, error) {
	var (
		rec           model.Record
		kind, status  string
		payload       []byte
		lastAttempted *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.FolderName, &rec.ExternalID, &rec.Name, &kind, &payload, &rec.Fragment,
		&rec.FragmentTemplate, &rec.Fingerprint, &rec.AttemptFingerprint, &status, &rec.ErrorDetail, &rec.RetryCount,
		&rec.FirstSeenAt, &rec.LastChangedAt, &lastAttempted,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = model.Kind(kind)
	rec.Status = model.RecordStatus(status)
	rec.Payload = payload
	rec.LastAttemptedAt = lastAttempted
	return &rec, nil
}

func (p *postgresStore) ListRecords(ctx context.Context, tenantID uuid.UUID, folder string) (map[string]*model.Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM sync_records WHERE tenant_id = $1 AND folder_name = $2`,
		tenantID, folder)
	if err != nil {
		return nil, wrapErr("list records", err)
	}
	defer rows.Close()

	result := make(map[string]*model.Record)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr("scan record", err)
		}
		result[rec.ExternalID] = rec
	}
	return result, wrapErr("list records", rows.Err())
}

func (p *postgresStore) Upsert(ctx context.Context, params UpsertParams) (*model.Record, error) {
	var payload []byte
	if len(params.Payload) > 0 {
		payload = params.Payload
	}

	row := p.pool.QueryRow(ctx, upsertRecordSQL+recordColumns,
		params.TenantID,
		params.FolderName,
		params.ExternalID,
		params.Name,
		string(params.Kind),
		payload,
		params.Fragment,
		params.FragmentTemplate,
		params.Fingerprint,
		params.AttemptedAt,
		changedAt(params.LastModified, params.AttemptedAt),
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, wrapErr("upsert record", err)
	}
	return rec, nil
}

func (p *postgresStore) MarkRemoved(ctx context.Context, tenantID uuid.UUID, folder, externalID string) (*model.Record, error) {
	row := p.pool.QueryRow(ctx,
		`UPDATE sync_records SET status = 'deleted'
		 WHERE tenant_id = $1 AND folder_name = $2 AND external_id = $3
		 RETURNING `+recordColumns,
		tenantID, folder, externalID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, wrapErr("mark record removed", err)
	}
	return rec, nil
}

func (p *postgresStore) MarkError(ctx context.Context, params MarkErrorParams) (*model.Record, error) {
	row := p.pool.QueryRow(ctx, markErrorSQL+recordColumns,
		params.TenantID,
		params.FolderName,
		params.ExternalID,
		params.Name,
		string(params.Kind),
		params.ErrorDetail,
		params.Fingerprint,
		params.AttemptedAt,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, wrapErr("mark record error", err)
	}
	return rec, nil
}

func (p *postgresStore) ActiveRecords(ctx context.Context, tenantID uuid.UUID, folder string) ([]*model.Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM sync_records
		 WHERE tenant_id = $1 AND folder_name = $2 AND status = 'active'
		 ORDER BY last_changed_at DESC, external_id ASC`,
		tenantID, folder)
	if err != nil {
		return nil, wrapErr("list active records", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr("scan record", err)
		}
		result = append(result, rec)
	}
	return result, wrapErr("list active records", rows.Err())
}

func (p *postgresStore) ErrorRecords(ctx context.Context, limit int) ([]ErrorRecord, error) {
	limit = listLimit(limit)

	rows, err := p.pool.Query(ctx,
		`SELECT t.key, `+prefixedRecordColumns+` FROM sync_records r
		 JOIN tenants t ON t.id = r.tenant_id
		 WHERE r.status = 'error'
		 ORDER BY r.last_attempted_at DESC NULLS LAST, r.external_id ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, wrapErr("list error records", err)
	}
	defer rows.Close()

	var result []ErrorRecord
	for rows.Next() {
		var tenantKey string
		rec, err := scanRecord(prefixedRow{rows: rows, prefix: []any{&tenantKey}})
		if err != nil {
			return nil, wrapErr("scan record", err)
		}
		result = append(result, ErrorRecord{TenantKey: tenantKey, Record: rec})
	}
	return result, wrapErr("list error records", rows.Err())
}

// prefixedRow scans leading columns into prefix before handing the rest to the caller
type prefixedRow struct {
	rows   pgx.Rows
	prefix []any
}

func (r prefixedRow) Scan(dest ...any) error {
	return r.rows.Scan(append(r.prefix, dest...)...)
}

func (p *postgresStore) FolderStats(ctx context.Context, maxRetries int) ([]model.FolderStats, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.key, f.name, (f.enabled AND t.enabled), f.last_checked_at,
		       count(r.id) FILTER (WHERE r.status = 'active'),
		       count(r.id) FILTER (WHERE r.status IN ('error', 'processing')),
		       count(r.id) FILTER (WHERE r.status = 'error' AND r.retry_count > $1),
		       count(r.id) FILTER (WHERE r.status = 'deleted')
		FROM folder_configs f
		JOIN tenants t ON t.id = f.tenant_id
		LEFT JOIN sync_records r ON r.tenant_id = f.tenant_id AND r.folder_name = f.name
		GROUP BY t.key, f.name, f.enabled, t.enabled, f.last_checked_at
		ORDER BY t.key, f.name`,
		maxRetries)
	if err != nil {
		return nil, wrapErr("folder stats", err)
	}
	defer rows.Close()

	var result []model.FolderStats
	for rows.Next() {
		var s model.FolderStats
		if err := rows.Scan(
			&s.TenantKey, &s.FolderName, &s.Enabled, &s.LastCheckedAt,
			&s.Active, &s.Errors, &s.Terminal, &s.Deleted,
		); err != nil {
			return nil, wrapErr("scan folder stats", err)
		}
		result = append(result, s)
	}
	return result, wrapErr("folder stats", rows.Err())
}

const tenantColumns = `id, key, name, output_path, enabled, credentials_file, last_synced_at`

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var t model.Tenant
	if err := row.Scan(&t.ID, &t.Key, &t.Name, &t.OutputPath, &t.Enabled, &t.CredentialsFile, &t.LastSyncedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *postgresStore) ListTenants(ctx context.Context, enabledOnly bool) ([]*model.Tenant, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE ($1 = false OR enabled) ORDER BY key`,
		enabledOnly)
	if err != nil {
		return nil, wrapErr("list tenants", err)
	}
	defer rows.Close()

	var result []*model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, wrapErr("scan tenant", err)
		}
		result = append(result, t)
	}
	return result, wrapErr("list tenants", rows.Err())
}

func (p *postgresStore) GetTenant(ctx context.Context, key string) (*model.Tenant, error) {
	t, err := scanTenant(p.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, wrapErr("get tenant", err)
	}
	return t, nil
}

func (p *postgresStore) ListFolders(ctx context.Context, tenantID uuid.UUID, enabledOnly bool) ([]*model.FolderConfig, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, tenantID).Scan(&exists); err != nil {
		return nil, wrapErr("list folders", err)
	}
	if !exists {
		return nil, ErrTenantNotFound
	}

	rows, err := p.pool.Query(ctx,
		`SELECT tenant_id, name, source, container_id, template, enabled, last_checked_at
		 FROM folder_configs
		 WHERE tenant_id = $1 AND ($2 = false OR enabled)
		 ORDER BY name`,
		tenantID, enabledOnly)
	if err != nil {
		return nil, wrapErr("list folders", err)
	}
	defer rows.Close()

	var result []*model.FolderConfig
	for rows.Next() {
		var f model.FolderConfig
		if err := rows.Scan(&f.TenantID, &f.Name, &f.Source, &f.ContainerID, &f.Template, &f.Enabled, &f.LastCheckedAt); err != nil {
			return nil, wrapErr("scan folder", err)
		}
		result = append(result, &f)
	}
	return result, wrapErr("list folders", rows.Err())
}

func (p *postgresStore) TouchTenant(ctx context.Context, tenantID uuid.UUID, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE tenants SET last_synced_at = $2 WHERE id = $1`, tenantID, at)
	if err != nil {
		return wrapErr("touch tenant", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *postgresStore) TouchFolder(ctx context.Context, tenantID uuid.UUID, folder string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE folder_configs SET last_checked_at = $3 WHERE tenant_id = $1 AND name = $2`,
		tenantID, folder, at)
	if err != nil {
		return wrapErr("touch folder", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *postgresStore) SeedTenants(ctx context.Context, tenants []config.TenantConfig) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer func() {
		// Rollback after Commit is a no-op
		_ = tx.Rollback(ctx)
	}()

	for i := range tenants {
		tc := &tenants[i]

		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO tenants (id, key, name, output_path, enabled, credentials_file)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (key) DO UPDATE SET
			    name             = EXCLUDED.name,
			    output_path      = EXCLUDED.output_path,
			    enabled          = EXCLUDED.enabled,
			    credentials_file = EXCLUDED.credentials_file,
			    updated_at       = now()
			RETURNING id`,
			uuid.New(), tc.Key, tc.Name, tc.OutputPath, tc.IsEnabled(), tc.CredentialsFile,
		).Scan(&id)
		if err != nil {
			return wrapErr(fmt.Sprintf("seed tenant %s", tc.Key), err)
		}

		for j := range tc.Folders {
			fc := &tc.Folders[j]
			_, err := tx.Exec(ctx, `
				INSERT INTO folder_configs (tenant_id, name, source, container_id, template, enabled)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (tenant_id, name) DO UPDATE SET
				    source       = EXCLUDED.source,
				    container_id = EXCLUDED.container_id,
				    template     = EXCLUDED.template,
				    enabled      = EXCLUDED.enabled`,
				id, fc.Name, fc.Source, fc.ContainerID, fc.GetTemplate(), fc.IsEnabled(),
			)
			if err != nil {
				return wrapErr(fmt.Sprintf("seed folder %s/%s", tc.Key, fc.Name), err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

func (p *postgresStore) AppendLog(ctx context.Context, entry *model.SyncLogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO sync_log (
		    tenant_id, operation, folder_name, external_id, item_name,
		    outcome, message, error_detail, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		entry.TenantID, entry.Operation, entry.FolderName, entry.ExternalID, entry.ItemName,
		entry.Outcome, entry.Message, entry.ErrorDetail, entry.Duration.Milliseconds(), createdAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return wrapErr("append sync log", err)
	}
	return nil
}

func (p *postgresStore) RecentLogs(ctx context.Context, filter LogFilter) ([]*model.SyncLogEntry, error) {
	if filter.TenantKey != "" {
		if _, err := p.GetTenant(ctx, filter.TenantKey); err != nil {
			return nil, err
		}
	}

	rows, err := p.pool.Query(ctx, `
		SELECT l.id, l.tenant_id, l.operation, l.folder_name, l.external_id, l.item_name,
		       l.outcome, l.message, l.error_detail, l.duration_ms, l.created_at
		FROM sync_log l
		LEFT JOIN tenants t ON t.id = l.tenant_id
		WHERE ($1 = '' OR t.key = $1) AND ($2 = false OR l.outcome = 'failure')
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT $3`,
		filter.TenantKey, filter.FailuresOnly, filter.limit())
	if err != nil {
		return nil, wrapErr("list sync log", err)
	}
	defer rows.Close()

	var result []*model.SyncLogEntry
	for rows.Next() {
		var (
			e          model.SyncLogEntry
			durationMs int64
		)
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.Operation, &e.FolderName, &e.ExternalID, &e.ItemName,
			&e.Outcome, &e.Message, &e.ErrorDetail, &durationMs, &e.CreatedAt,
		); err != nil {
			return nil, wrapErr("scan sync log", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, &e)
	}
	return result, wrapErr("list sync log", rows.Err())
}
