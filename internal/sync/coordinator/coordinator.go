package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/otel"
	"github.com/civicportal/portal-sync/internal/sources"
	pkgsync "github.com/civicportal/portal-sync/internal/sync"
	"github.com/civicportal/portal-sync/internal/synclog"
	"github.com/civicportal/portal-sync/internal/telemetry"
)

// maxJitterFraction is the largest random extension applied to the poll interval
const maxJitterFraction = 0.1

// Coordinator runs sync cycles across tenants on the configured poll interval
type Coordinator interface {
	// Start runs a cycle immediately and then one per poll interval.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the running loop and waits for the current cycle to wind down
	Stop() error

	// RunCycle runs a single cycle. Cycles never overlap; a call made while
	// another cycle runs waits for it to finish.
	RunCycle(ctx context.Context) *CycleReport
}

// Snapshotter supplies the configuration snapshot of a cycle
type Snapshotter interface {
	Snapshot() *config.Config
}

// TenantStore is the persistence the coordinator needs
type TenantStore interface {
	Ping(ctx context.Context) error
	ListTenants(ctx context.Context, enabledOnly bool) ([]*model.Tenant, error)
	ListFolders(ctx context.Context, tenantID uuid.UUID, enabledOnly bool) ([]*model.FolderConfig, error)
	TouchTenant(ctx context.Context, tenantID uuid.UUID, at time.Time) error
}

// CycleReport summarizes one cycle
type CycleReport struct {
	StartedAt time.Time
	Duration  time.Duration

	// Aborted is set when the cycle could not start processing tenants
	Aborted bool
	Err     error

	Tenants []TenantReport
}

// Failed returns the number of tenants with at least one failed folder
func (r *CycleReport) Failed() int {
	n := 0
	for i := range r.Tenants {
		if r.Tenants[i].Err != nil || r.Tenants[i].FailedFolders > 0 {
			n++
		}
	}
	return n
}

// TenantReport summarizes one tenant's pass
type TenantReport struct {
	Key           string
	Folders       int
	FailedFolders int
	Canceled      bool

	// Err is set when the tenant's folders could not be loaded
	Err error

	Results map[string]*pkgsync.Result
	Errors  map[string]*pkgsync.Error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager  pkgsync.Manager
	tenants  TenantStore
	factory  sources.Factory
	snapshot Snapshotter
	recorder *synclog.Recorder

	syncMetrics *telemetry.SyncMetrics
	tracer      trace.Tracer
	now         func() time.Time

	// cycleMu serializes cycles
	cycleMu gosync.Mutex

	// Lifecycle management
	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithTracer creates spans for cycles and tenant passes
func WithTracer(t trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = t
	}
}

// WithRecorder sets the sync log recorder. Without one, cycle events only go to slog.
func WithRecorder(r *synclog.Recorder) Option {
	return func(c *defaultCoordinator) {
		c.recorder = r
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies
func New(
	manager pkgsync.Manager,
	tenants TenantStore,
	factory sources.Factory,
	snapshot Snapshotter,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		manager:  manager,
		tenants:  tenants,
		factory:  factory,
		snapshot: snapshot,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.recorder == nil {
		c.recorder = synclog.NewRecorder(nil)
	}

	return c
}

// calculatePollingInterval returns the base interval extended by up to 10% of random jitter,
// so that several engines sharing a database do not poll the providers in lockstep.
func calculatePollingInterval(base time.Duration) time.Duration {
	maxJitter := int64(float64(base) * maxJitterFraction)
	if maxJitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	return base + time.Duration(rand.Int64N(maxJitter))
}

// Start begins the polling loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		return fmt.Errorf("coordinator is already running")
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer func() {
		close(done)
		slog.Info("Sync coordinator shutting down")
	}()

	slog.Info("Starting sync coordinator")

	// Perform initial cycle
	c.RunCycle(coordCtx)

	pollingInterval := calculatePollingInterval(c.snapshot.Snapshot().Engine.GetPollInterval())
	slog.Info("Next sync cycle scheduled", "interval", pollingInterval)
	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RunCycle(coordCtx)

			// The interval may have changed with a configuration reload
			ticker.Reset(calculatePollingInterval(c.snapshot.Snapshot().Engine.GetPollInterval()))
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.cancelFunc = nil
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		// Wait for the loop to finish
		<-done
	}
	return nil
}

// RunCycle runs one cycle over every enabled tenant
func (c *defaultCoordinator) RunCycle(ctx context.Context) *CycleReport {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	ctx, span := otel.StartSpan(ctx, c.tracer, "sync.cycle")
	defer span.End()

	// The snapshot is immutable for the whole cycle; reloads apply to the next one
	cfg := c.snapshot.Snapshot()
	report := &CycleReport{StartedAt: c.now()}

	defer func() {
		report.Duration = c.now().Sub(report.StartedAt)
		c.syncMetrics.RecordCycle(ctx, report.Duration, report.Aborted)

		entry := synclog.Entry{Operation: model.OpCycle, Duration: report.Duration}
		if report.Aborted {
			otel.RecordError(span, report.Err)
			entry.Outcome = model.OutcomeFailure
			entry.Message = "Sync cycle aborted"
			entry.ErrorDetail = report.Err.Error()
		} else {
			entry.Message = fmt.Sprintf("Sync cycle completed: %d tenants, %d with failures",
				len(report.Tenants), report.Failed())
		}
		c.recorder.Record(ctx, entry)
	}()

	slog.Info("Starting sync cycle")

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Engine.GetDBTimeout())
	err := c.tenants.Ping(pingCtx)
	cancel()
	if err != nil {
		report.Aborted = true
		report.Err = fmt.Errorf("store is unavailable: %w", err)
		slog.Error("Aborting sync cycle, store is unavailable", "error", err)
		return report
	}

	listCtx, cancel := context.WithTimeout(ctx, cfg.Engine.GetDBTimeout())
	tenants, err := c.tenants.ListTenants(listCtx, true)
	cancel()
	if err != nil {
		report.Aborted = true
		report.Err = fmt.Errorf("failed to list tenants: %w", err)
		slog.Error("Aborting sync cycle, tenants could not be listed", "error", err)
		return report
	}
	span.SetAttributes(otel.AttrTenantCount.Int(len(tenants)))

	// Folder mappings are read up front so a reload seeding the store while
	// tenants are processed only applies to the next cycle
	plans := c.planTenants(ctx, cfg, tenants)
	report.Tenants = make([]TenantReport, len(plans))

	var g errgroup.Group
	g.SetLimit(cfg.Engine.GetTenantConcurrency())
	for i, plan := range plans {
		if ctx.Err() != nil {
			report.Tenants[i] = TenantReport{Key: plan.tenant.Key, Canceled: true}
			continue
		}
		g.Go(func() error {
			// A tenant never fails its siblings
			report.Tenants[i] = c.syncTenant(ctx, cfg, plan)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("Sync cycle completed",
		"tenants", len(tenants),
		"failed", report.Failed(),
		"duration", c.now().Sub(report.StartedAt))
	return report
}

// tenantPlan is a tenant with the folders it syncs this cycle
type tenantPlan struct {
	tenant  *model.Tenant
	folders []*model.FolderConfig
	err     error
}

func (c *defaultCoordinator) planTenants(ctx context.Context, cfg *config.Config, tenants []*model.Tenant) []tenantPlan {
	plans := make([]tenantPlan, len(tenants))
	for i, tenant := range tenants {
		plans[i].tenant = tenant
		if ctx.Err() != nil {
			continue
		}
		listCtx, cancel := context.WithTimeout(ctx, cfg.Engine.GetDBTimeout())
		plans[i].folders, plans[i].err = c.tenants.ListFolders(listCtx, tenant.ID, true)
		cancel()
	}
	return plans
}

// syncTenant processes the tenant's enabled folders one after the other
func (c *defaultCoordinator) syncTenant(ctx context.Context, cfg *config.Config, plan tenantPlan) TenantReport {
	tenant, folders := plan.tenant, plan.folders
	ctx, span := otel.StartSpan(ctx, c.tracer, "sync.tenant",
		trace.WithAttributes(otel.AttrTenantKey.String(tenant.Key)))
	defer span.End()

	start := c.now()
	tenantID := tenant.ID
	report := TenantReport{
		Key:     tenant.Key,
		Results: make(map[string]*pkgsync.Result),
		Errors:  make(map[string]*pkgsync.Error),
	}
	entry := synclog.Entry{TenantID: &tenantID, Operation: model.OpTenant}

	if err := plan.err; err != nil {
		otel.RecordError(span, err)
		report.Err = fmt.Errorf("failed to list folders: %w", err)
		entry.Outcome = model.OutcomeFailure
		entry.ErrorDetail = report.Err.Error()
		entry.Duration = c.now().Sub(start)
		c.recorder.Record(ctx, entry)
		return report
	}
	report.Folders = len(folders)

	connectors := sources.NewConnectorSet(c.factory, cfg, tenant)
	defer func() {
		if err := connectors.Close(); err != nil {
			slog.Warn("Failed to release connectors", "tenant", tenant.Key, "error", err)
		}
	}()
	for _, folder := range folders {
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}

		result, syncErr := c.manager.SyncFolder(ctx, cfg, tenant, folder, connectors)
		report.Results[folder.Name] = result
		if syncErr != nil {
			if syncErr.Kind == pkgsync.ErrorKindCanceled {
				report.Canceled = true
				break
			}
			report.FailedFolders++
			report.Errors[folder.Name] = syncErr
			slog.Warn("Folder sync failed",
				"tenant", tenant.Key,
				"folder", folder.Name,
				"kind", syncErr.Kind,
				"error", syncErr.Message)
		}
	}

	entry.Duration = c.now().Sub(start)
	entry.Message = fmt.Sprintf("Synced %d folders, %d failed", report.Folders, report.FailedFolders)
	if report.Canceled {
		entry.Outcome = model.OutcomeSkipped
		entry.Message = "Tenant sync canceled"
		c.recorder.Record(ctx, entry)
		return report
	}
	if report.FailedFolders > 0 {
		entry.Outcome = model.OutcomeFailure
	}
	c.recorder.Record(ctx, entry)

	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine.GetDBTimeout())
	defer cancel()
	if err := c.tenants.TouchTenant(touchCtx, tenant.ID, c.now().UTC()); err != nil {
		slog.Warn("Failed to record tenant sync time", "tenant", tenant.Key, "error", err)
	}
	return report
}
