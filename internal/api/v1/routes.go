// Package v1 provides the read-only status API of the sync engine.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicportal/portal-sync/internal/api/common"
	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// StatusStore is the read side of the store used by the status API
type StatusStore interface {
	Ping(ctx context.Context) error
	ListTenants(ctx context.Context, enabledOnly bool) ([]*model.Tenant, error)
	GetTenant(ctx context.Context, key string) (*model.Tenant, error)
	ListFolders(ctx context.Context, tenantID uuid.UUID, enabledOnly bool) ([]*model.FolderConfig, error)
	FolderStats(ctx context.Context, maxRetries int) ([]model.FolderStats, error)
	ErrorRecords(ctx context.Context, limit int) ([]store.ErrorRecord, error)
	RecentLogs(ctx context.Context, filter store.LogFilter) ([]*model.SyncLogEntry, error)
}

// MaxRetriesFunc returns the retry bound of the current configuration snapshot
type MaxRetriesFunc func() int

// TenantResponse is a tenant with its folder mappings
type TenantResponse struct {
	*model.Tenant
	Folders []*model.FolderConfig `json:"folders"`
}

// ErrorRecordResponse is a record in error
type ErrorRecordResponse struct {
	Tenant          string     `json:"tenant"`
	Folder          string     `json:"folder"`
	ExternalID      string     `json:"external_id"`
	Name            string     `json:"name"`
	Kind            model.Kind `json:"kind"`
	ErrorDetail     string     `json:"error_detail"`
	RetryCount      int        `json:"retry_count"`
	Terminal        bool       `json:"terminal"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
}

// LogEntryResponse is one sync log entry
type LogEntryResponse struct {
	ID          int64     `json:"id"`
	Operation   string    `json:"operation"`
	Folder      string    `json:"folder,omitempty"`
	ExternalID  string    `json:"external_id,omitempty"`
	Item        string    `json:"item,omitempty"`
	Outcome     string    `json:"outcome"`
	Message     string    `json:"message,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Routes handles the status API
type Routes struct {
	store      StatusStore
	maxRetries MaxRetriesFunc
}

// NewRoutes creates a new Routes instance
func NewRoutes(st StatusStore, maxRetries MaxRetriesFunc) *Routes {
	return &Routes{store: st, maxRetries: maxRetries}
}

// Router creates the status API router
func Router(st StatusStore, maxRetries MaxRetriesFunc) http.Handler {
	routes := NewRoutes(st, maxRetries)

	r := chi.NewRouter()
	r.Get("/status", routes.folderStatus)
	r.Get("/errors", routes.errorRecords)
	r.Get("/logs", routes.recentLogs)
	r.Get("/tenants", routes.listTenants)
	r.Get("/tenants/{tenantKey}", routes.getTenant)

	return r
}

// folderStatus handles GET /v1/status
//
// @Summary		Folder status
// @Description	Record counts per tenant folder
// @Tags			status
// @Produce		json
// @Success		200	{array}		model.FolderStats
// @Failure		500	{object}	common.ErrorResponse
// @Router			/v1/status [get]
func (rr *Routes) folderStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := rr.store.FolderStats(r.Context(), rr.maxRetries())
	if err != nil {
		slog.Error("Failed to load folder stats", "error", err)
		common.WriteErrorResponse(w, "Failed to load folder status", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []model.FolderStats{}
	}
	common.WriteJSONResponse(w, stats, http.StatusOK)
}

// errorRecords handles GET /v1/errors
//
// @Summary		Records in error
// @Description	Records whose last attempt failed, most recent first
// @Tags			status
// @Produce		json
// @Param			limit	query		int	false	"Maximum number of records to return"
// @Success		200		{array}		ErrorRecordResponse
// @Failure		400		{object}	common.ErrorResponse
// @Router			/v1/errors [get]
func (rr *Routes) errorRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := common.QueryLimit(r, defaultLimit, maxLimit)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := rr.store.ErrorRecords(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to load error records", "error", err)
		common.WriteErrorResponse(w, "Failed to load error records", http.StatusInternalServerError)
		return
	}

	maxRetries := rr.maxRetries()
	resp := make([]ErrorRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, ErrorRecordResponse{
			Tenant:          rec.TenantKey,
			Folder:          rec.FolderName,
			ExternalID:      rec.ExternalID,
			Name:            rec.Name,
			Kind:            rec.Kind,
			ErrorDetail:     rec.ErrorDetail,
			RetryCount:      rec.RetryCount,
			Terminal:        rec.RetryCount > maxRetries,
			LastAttemptedAt: rec.LastAttemptedAt,
		})
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// recentLogs handles GET /v1/logs
//
// @Summary		Sync log
// @Description	Recent sync log entries, newest first
// @Tags			status
// @Produce		json
// @Param			tenant		query		string	false	"Tenant key"
// @Param			failures	query		bool	false	"Only failed operations"
// @Param			limit		query		int		false	"Maximum number of entries to return"
// @Success		200			{array}		LogEntryResponse
// @Failure		400			{object}	common.ErrorResponse
// @Failure		404			{object}	common.ErrorResponse
// @Router			/v1/logs [get]
func (rr *Routes) recentLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := common.QueryLimit(r, defaultLimit, maxLimit)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	failures, err := common.QueryBool(r, "failures")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := rr.store.RecentLogs(r.Context(), store.LogFilter{
		TenantKey:    r.URL.Query().Get("tenant"),
		FailuresOnly: failures,
		Limit:        limit,
	})
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			common.WriteErrorResponse(w, "Tenant not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load sync log", "error", err)
		common.WriteErrorResponse(w, "Failed to load sync log", http.StatusInternalServerError)
		return
	}

	resp := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, LogEntryResponse{
			ID:          e.ID,
			Operation:   e.Operation,
			Folder:      e.FolderName,
			ExternalID:  e.ExternalID,
			Item:        e.ItemName,
			Outcome:     e.Outcome,
			Message:     e.Message,
			ErrorDetail: e.ErrorDetail,
			DurationMS:  e.Duration.Milliseconds(),
			CreatedAt:   e.CreatedAt,
		})
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// listTenants handles GET /v1/tenants
//
// @Summary		List tenants
// @Tags			tenants
// @Produce		json
// @Success		200	{array}	model.Tenant
// @Router			/v1/tenants [get]
func (rr *Routes) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := rr.store.ListTenants(r.Context(), false)
	if err != nil {
		slog.Error("Failed to list tenants", "error", err)
		common.WriteErrorResponse(w, "Failed to list tenants", http.StatusInternalServerError)
		return
	}
	if tenants == nil {
		tenants = []*model.Tenant{}
	}
	common.WriteJSONResponse(w, tenants, http.StatusOK)
}

// getTenant handles GET /v1/tenants/{tenantKey}
//
// @Summary		Get tenant
// @Description	A tenant with its folder mappings
// @Tags			tenants
// @Produce		json
// @Param			tenantKey	path		string	true	"Tenant key"
// @Success		200			{object}	TenantResponse
// @Failure		400			{object}	common.ErrorResponse
// @Failure		404			{object}	common.ErrorResponse
// @Router			/v1/tenants/{tenantKey} [get]
func (rr *Routes) getTenant(w http.ResponseWriter, r *http.Request) {
	key, err := common.GetAndValidateURLParam(r, "tenantKey")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	tenant, err := rr.store.GetTenant(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			common.WriteErrorResponse(w, "Tenant not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get tenant", "tenant", key, "error", err)
		common.WriteErrorResponse(w, "Failed to get tenant", http.StatusInternalServerError)
		return
	}

	folders, err := rr.store.ListFolders(r.Context(), tenant.ID, false)
	if err != nil {
		slog.Error("Failed to list folders", "tenant", key, "error", err)
		common.WriteErrorResponse(w, "Failed to list folders", http.StatusInternalServerError)
		return
	}
	if folders == nil {
		folders = []*model.FolderConfig{}
	}
	common.WriteJSONResponse(w, TenantResponse{Tenant: tenant, Folders: folders}, http.StatusOK)
}
