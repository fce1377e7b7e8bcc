package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/civicportal/portal-sync/internal/artifacts"
	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/filtering"
	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/otel"
	"github.com/civicportal/portal-sync/internal/parsers"
	"github.com/civicportal/portal-sync/internal/sources"
	"github.com/civicportal/portal-sync/internal/store"
	"github.com/civicportal/portal-sync/internal/sync/retry"
	"github.com/civicportal/portal-sync/internal/synclog"
	"github.com/civicportal/portal-sync/internal/telemetry"
)

// Error kinds of folder-level failures
const (
	// ErrorKindConfig means the folder mapping or its container is invalid; the folder is skipped
	ErrorKindConfig = "config"
	// ErrorKindSource means the container could not be listed
	ErrorKindSource = "source"
	// ErrorKindStore means folder state could not be read or written
	ErrorKindStore = "store"
	// ErrorKindArtifact means the artifact could not be generated
	ErrorKindArtifact = "artifact"
	// ErrorKindCanceled means the pass stopped because its context ended
	ErrorKindCanceled = "canceled"
)

// Error is a folder-level failure
type Error struct {
	Err     error
	Message string
	Kind    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result counts what a folder pass did
type Result struct {
	Listed int
	// Filtered counts listed items dropped by the folder filter; they are not part of Listed
	Filtered  int
	New       int
	Changed   int
	Unchanged int
	Removed   int

	// Written counts successful upserts
	Written int
	// Failed counts attempts recorded as errors
	Failed int
	// Transient counts items left untouched for the next cycle
	Transient int
	// Deferred counts new or changed items beyond the batch size
	Deferred int
	// StoreErrors counts single-record writes that failed
	StoreErrors int

	Artifact *artifacts.Result
}

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager

// Manager runs folder passes
type Manager interface {
	// SyncFolder synchronizes one folder of a tenant against its source container
	// using the given configuration snapshot. Per-item failures are counted in the
	// result; only failures of the pass itself are returned as *Error.
	SyncFolder(
		ctx context.Context,
		cfg *config.Config,
		tenant *model.Tenant,
		folder *model.FolderConfig,
		connectors *sources.ConnectorSet,
	) (*Result, *Error)
}

// Store is the persistence a folder pass needs
type Store interface {
	store.RecordStore
	TouchFolder(ctx context.Context, tenantID uuid.UUID, folder string, at time.Time) error
}

// ManagerOption configures the default Manager
type ManagerOption func(*defaultManager)

// WithMetrics records folder and item metrics
func WithMetrics(m *telemetry.SyncMetrics) ManagerOption {
	return func(dm *defaultManager) {
		dm.metrics = m
	}
}

// WithTracer creates spans for folder passes
func WithTracer(t trace.Tracer) ManagerOption {
	return func(dm *defaultManager) {
		dm.tracer = t
	}
}

// WithClock sets the time source for attempt timestamps
func WithClock(now func() time.Time) ManagerOption {
	return func(dm *defaultManager) {
		dm.now = now
	}
}

// WithFilterService replaces the service applying folder filters
func WithFilterService(f filtering.FilterService) ManagerOption {
	return func(dm *defaultManager) {
		dm.filter = f
	}
}

// defaultManager is the default implementation of Manager
type defaultManager struct {
	store     Store
	filter    filtering.FilterService
	parsers   *parsers.Registry
	renderer  *artifacts.Renderer
	generator artifacts.Generator
	recorder  *synclog.Recorder
	metrics   *telemetry.SyncMetrics
	tracer    trace.Tracer
	now       func() time.Time
}

var _ Manager = (*defaultManager)(nil)

// NewManager creates the default folder pipeline
func NewManager(
	st Store,
	registry *parsers.Registry,
	renderer *artifacts.Renderer,
	generator artifacts.Generator,
	recorder *synclog.Recorder,
	opts ...ManagerOption,
) Manager {
	m := &defaultManager{
		store:     st,
		parsers:   registry,
		renderer:  renderer,
		generator: generator,
		recorder:  recorder,
		filter:    filtering.NewDefaultFilterService(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// folderRun carries the state of one folder pass
type folderRun struct {
	cfg    *config.Config
	tenant *model.Tenant
	folder *model.FolderConfig
	policy retry.Policy
	result *Result
	logger *slog.Logger
}

// advance runs a record's status through the retry state machine and returns
// the status the store write must produce. An invalid change is logged and
// reported as not ok; the caller skips the write.
func (r *folderRun) advance(rec *model.Record, externalID string, events ...retry.Event) (model.RecordStatus, bool) {
	var status model.RecordStatus
	if rec != nil {
		status = rec.Status
	}
	for _, ev := range events {
		next, err := r.policy.Transition(status, ev)
		if err != nil {
			r.logger.Warn("Skipping invalid record status change", "external_id", externalID, "error", err)
			return status, false
		}
		status = next
	}
	return status, true
}

// checkStored warns when a store write left a status other than the one expected
func (r *folderRun) checkStored(rec *model.Record, want model.RecordStatus) {
	if rec != nil && rec.Status != want {
		r.logger.Warn("Stored record status differs from the expected one",
			"external_id", rec.ExternalID,
			"status", rec.Status,
			"expected", want)
	}
}

func (r *folderRun) entry(op string) synclog.Entry {
	tenantID := r.tenant.ID
	return synclog.Entry{TenantID: &tenantID, Operation: op, FolderName: r.folder.Name}
}

func (m *defaultManager) SyncFolder(
	ctx context.Context,
	cfg *config.Config,
	tenant *model.Tenant,
	folder *model.FolderConfig,
	connectors *sources.ConnectorSet,
) (*Result, *Error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.folder",
		trace.WithAttributes(
			otel.AttrTenantKey.String(tenant.Key),
			otel.AttrFolderName.String(folder.Name),
			otel.AttrSourceType.String(folder.Source),
		),
	)
	defer span.End()

	start := m.now()
	run := &folderRun{
		cfg:    cfg,
		tenant: tenant,
		folder: folder,
		policy: retry.Policy{MaxRetries: cfg.Engine.GetMaxRetries()},
		result: &Result{},
		logger: slog.With("tenant", tenant.Key, "folder", folder.Name),
	}

	syncErr := m.syncFolder(ctx, run, connectors)
	duration := m.now().Sub(start)
	m.metrics.RecordFolder(ctx, tenant.Key, folder.Name, duration, syncErr == nil)

	entry := run.entry(model.OpFolder)
	entry.Duration = duration
	entry.Message = summaryMessage(run.result)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		entry.Outcome = model.OutcomeFailure
		if syncErr.Kind == ErrorKindConfig {
			entry.Outcome = model.OutcomeSkipped
		}
		entry.ErrorDetail = syncErr.Message
		m.recorder.Record(ctx, entry)
		return run.result, syncErr
	}

	span.SetAttributes(otel.AttrResultCount.Int(run.result.Listed))
	entry.Outcome = model.OutcomeSuccess
	m.recorder.Record(ctx, entry)
	run.logger.Info("Folder sync completed",
		"listed", run.result.Listed,
		"new", run.result.New,
		"changed", run.result.Changed,
		"unchanged", run.result.Unchanged,
		"removed", run.result.Removed,
		"failed", run.result.Failed,
		"duration", duration)
	return run.result, nil
}

func (m *defaultManager) syncFolder(ctx context.Context, run *folderRun, connectors *sources.ConnectorSet) *Error {
	cfg, folder := run.cfg, run.folder

	if err := config.ValidateFolderName(folder.Name); err != nil {
		return &Error{Err: err, Message: fmt.Sprintf("Invalid folder: %v", err), Kind: ErrorKindConfig}
	}
	conn, err := connectors.Get(ctx, folder.Source)
	if err != nil {
		run.logger.Warn("Skipping folder, source is not usable", "source", folder.Source, "error", err)
		return &Error{Err: err, Message: fmt.Sprintf("Source %s is not usable: %v", folder.Source, err), Kind: ErrorKindConfig}
	}

	items, listErr := m.list(ctx, run, conn)
	if listErr != nil {
		return listErr
	}
	run.result.Listed = len(items)

	readCtx, cancel := context.WithTimeout(ctx, cfg.Engine.GetDBTimeout())
	stored, err := m.store.ListRecords(readCtx, run.tenant.ID, folder.Name)
	cancel()
	if err != nil {
		return &Error{Err: err, Message: fmt.Sprintf("Failed to load stored records: %v", err), Kind: ErrorKindStore}
	}

	changes := Detector{Policy: run.policy}.Classify(items, stored)
	summary := Summarize(changes)
	run.result.New = summary.New
	run.result.Changed = summary.Changed
	run.result.Unchanged = summary.Unchanged
	run.result.Removed = summary.Removed
	m.metrics.RecordItems(ctx, run.tenant.Key, folder.Name, string(ChangeUnchanged), model.OutcomeSkipped, summary.Unchanged)

	var work []Change
	for _, c := range changes {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		switch c.Kind {
		case ChangeRemoved:
			m.applyRemoval(ctx, run, c.Record)
		case ChangeNew, ChangeChanged:
			work = append(work, c)
		}
	}

	if batch := cfg.Engine.GetBatchSize(); len(work) > batch {
		run.result.Deferred = len(work) - batch
		run.logger.Info("Batch size reached, deferring items to the next cycle",
			"batch_size", batch,
			"deferred", run.result.Deferred)
		work = work[:batch]
	}

	outcomes := m.process(ctx, run, conn, work)
	for _, out := range outcomes {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		m.apply(ctx, run, out)
	}

	art, err := m.generator.Generate(ctx, cfg.Engine.GetOutputRoot(), run.tenant, folder)
	if err != nil {
		entry := run.entry(model.OpRender)
		entry.Outcome = model.OutcomeFailure
		entry.ErrorDetail = err.Error()
		m.recorder.Record(ctx, entry)
		return &Error{Err: err, Message: fmt.Sprintf("Failed to generate artifact: %v", err), Kind: ErrorKindArtifact}
	}
	run.result.Artifact = art
	m.metrics.RecordActiveRecords(ctx, run.tenant.Key, folder.Name, art.Records)
	if art.Changed {
		entry := run.entry(model.OpRender)
		entry.Message = fmt.Sprintf("Rendered %d records", art.Records)
		m.recorder.Record(ctx, entry)
	}

	writeCtx, cancel := m.writeContext(ctx, cfg)
	defer cancel()
	if err := m.store.TouchFolder(writeCtx, run.tenant.ID, folder.Name, m.now().UTC()); err != nil {
		run.logger.Warn("Failed to record folder check time", "error", err)
	}
	return nil
}

// list lists, filters and sorts the folder's container. Filtered items are
// treated as no longer listed.
func (m *defaultManager) list(ctx context.Context, run *folderRun, conn sources.Connector) ([]model.ItemRef, *Error) {
	listCtx, cancel := context.WithTimeout(ctx, run.cfg.Engine.GetFetchTimeout())
	defer cancel()

	var items []model.ItemRef
	err := m.recorder.Time(ctx, run.entry(model.OpList), func() error {
		var err error
		items, err = conn.List(listCtx, run.folder.ContainerID)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx)
		}
		if sources.IsConfigError(err) {
			run.logger.Warn("Skipping folder, container is not usable", "container", run.folder.ContainerID, "error", err)
			return nil, &Error{Err: err, Message: fmt.Sprintf("Container is not usable: %v", err), Kind: ErrorKindConfig}
		}
		run.logger.Error("Failed to list container", "container", run.folder.ContainerID, "error", err)
		return nil, &Error{Err: err, Message: fmt.Sprintf("Failed to list container: %v", err), Kind: ErrorKindSource}
	}

	if filter := run.cfg.FolderFilter(run.tenant.Key, run.folder.Name); filter != nil {
		listed := len(items)
		items = m.filter.Apply(ctx, items, filter)
		run.result.Filtered = listed - len(items)
	}

	sources.SortItems(items)
	return items, nil
}

// outcome is the result of fetching, parsing and rendering one item
type outcome struct {
	change   Change
	payload  json.RawMessage
	fragment string
	err      error
	duration time.Duration
}

// process fetches, parses and renders items in parallel, keeping the input order
func (m *defaultManager) process(ctx context.Context, run *folderRun, conn sources.Connector, work []Change) []outcome {
	outcomes := make([]outcome, len(work))

	var g errgroup.Group
	g.SetLimit(run.cfg.Engine.GetFetchConcurrency())
	for i, c := range work {
		if ctx.Err() != nil {
			outcomes[i] = outcome{change: c, err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			outcomes[i] = m.processItem(ctx, run, conn, c)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (m *defaultManager) processItem(ctx context.Context, run *folderRun, conn sources.Connector, c Change) outcome {
	start := m.now()
	out := outcome{change: c}
	defer func() { out.duration = m.now().Sub(start) }()

	fetchCtx, cancel := context.WithTimeout(ctx, run.cfg.Engine.GetFetchTimeout())
	defer cancel()

	item, err := conn.Fetch(fetchCtx, c.Ref)
	if err != nil {
		out.err = err
		return out
	}

	payload, err := m.parsers.Parse(c.Ref.Kind, item)
	if err != nil {
		out.err = err
		return out
	}

	fragment, err := m.renderer.Fragment(run.folder.Template, &model.Record{
		TenantID:      run.tenant.ID,
		FolderName:    run.folder.Name,
		ExternalID:    c.Ref.ExternalID,
		Name:          c.Ref.Name,
		Kind:          c.Ref.Kind,
		Payload:       payload,
		Fingerprint:   c.Fingerprint,
		LastChangedAt: c.Ref.LastModified,
	})
	if err != nil {
		out.err = err
		return out
	}

	out.payload = payload
	out.fragment = fragment
	return out
}

// apply persists the outcome of one item. Errors never leave this function.
func (m *defaultManager) apply(ctx context.Context, run *folderRun, out outcome) {
	c := out.change
	ref := c.Ref
	changeKind := string(c.Kind)

	entry := run.entry(model.OpCreated)
	if c.Kind == ChangeChanged {
		entry.Operation = model.OpUpdated
	}
	entry.ExternalID = ref.ExternalID
	entry.ItemName = ref.Name
	entry.Duration = out.duration

	switch {
	case out.err == nil:
		want, ok := run.advance(c.Record, ref.ExternalID, retry.EventAttempt, retry.EventSucceed)
		if !ok {
			return
		}
		writeCtx, cancel := m.writeContext(ctx, run.cfg)
		rec, err := m.store.Upsert(writeCtx, store.UpsertParams{
			TenantID:         run.tenant.ID,
			FolderName:       run.folder.Name,
			ExternalID:       ref.ExternalID,
			Name:             ref.Name,
			Kind:             ref.Kind,
			Payload:          out.payload,
			Fragment:         out.fragment,
			FragmentTemplate: run.folder.Template,
			Fingerprint:      c.Fingerprint,
			LastModified:     ref.LastModified,
			AttemptedAt:      m.now().UTC(),
		})
		cancel()
		if err != nil {
			m.storeFailure(ctx, run, entry, changeKind, err)
			return
		}
		run.checkStored(rec, want)
		run.result.Written++
		m.metrics.RecordItems(ctx, run.tenant.Key, run.folder.Name, changeKind, model.OutcomeSuccess, 1)
		m.recorder.Record(ctx, entry)

	case sources.IsNotFound(out.err):
		// The item vanished between listing and fetching
		if c.Record != nil && m.applyRemoval(ctx, run, c.Record) {
			run.result.Removed++
		}

	case sources.IsTransient(out.err) || errors.Is(out.err, context.DeadlineExceeded):
		run.result.Transient++
		m.metrics.RecordItems(ctx, run.tenant.Key, run.folder.Name, changeKind, model.OutcomeSkipped, 1)
		entry.Operation = model.OpError
		entry.Outcome = model.OutcomeFailure
		entry.Message = "Transient source error, retrying next cycle"
		entry.ErrorDetail = out.err.Error()
		m.recorder.Record(ctx, entry)

	default:
		m.markError(ctx, run, out, entry)
	}
}

func (m *defaultManager) markError(ctx context.Context, run *folderRun, out outcome, entry synclog.Entry) {
	c := out.change
	changeKind := string(c.Kind)

	want, ok := run.advance(c.Record, c.Ref.ExternalID, retry.EventAttempt, retry.EventFail)
	if !ok {
		return
	}

	writeCtx, cancel := m.writeContext(ctx, run.cfg)
	rec, err := m.store.MarkError(writeCtx, store.MarkErrorParams{
		TenantID:    run.tenant.ID,
		FolderName:  run.folder.Name,
		ExternalID:  c.Ref.ExternalID,
		Name:        c.Ref.Name,
		Kind:        c.Ref.Kind,
		Fingerprint: c.Fingerprint,
		ErrorDetail: out.err.Error(),
		AttemptedAt: m.now().UTC(),
	})
	cancel()
	if err != nil {
		m.storeFailure(ctx, run, entry, changeKind, err)
		return
	}
	run.checkStored(rec, want)

	run.result.Failed++
	m.metrics.RecordItems(ctx, run.tenant.Key, run.folder.Name, changeKind, model.OutcomeFailure, 1)

	entry.Operation = model.OpError
	entry.Outcome = model.OutcomeFailure
	entry.ErrorDetail = out.err.Error()
	entry.Message = fmt.Sprintf("Attempt %d failed", rec.RetryCount)
	if run.policy.Exhausted(rec.RetryCount) {
		entry.Message = fmt.Sprintf("Attempt %d failed, retry limit reached", rec.RetryCount)
		run.logger.Warn("Record exceeded retry limit",
			"external_id", rec.ExternalID,
			"retry_count", rec.RetryCount,
			"max_retries", run.policy.MaxRetries)
	}
	m.recorder.Record(ctx, entry)
}

// applyRemoval marks a record deleted. It reports false when the record's
// status does not allow a removal.
func (m *defaultManager) applyRemoval(ctx context.Context, run *folderRun, rec *model.Record) bool {
	want, ok := run.advance(rec, rec.ExternalID, retry.EventRemove)
	if !ok {
		return false
	}

	entry := run.entry(model.OpRemoved)
	entry.ExternalID = rec.ExternalID
	entry.ItemName = rec.Name

	writeCtx, cancel := m.writeContext(ctx, run.cfg)
	defer cancel()

	removed, err := m.store.MarkRemoved(writeCtx, run.tenant.ID, run.folder.Name, rec.ExternalID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			m.storeFailure(ctx, run, entry, string(ChangeRemoved), err)
		}
		return true
	}
	run.checkStored(removed, want)
	m.metrics.RecordItems(ctx, run.tenant.Key, run.folder.Name, string(ChangeRemoved), model.OutcomeSuccess, 1)
	m.recorder.Record(ctx, entry)
	return true
}

func (m *defaultManager) storeFailure(ctx context.Context, run *folderRun, entry synclog.Entry, changeKind string, err error) {
	run.result.StoreErrors++
	m.metrics.RecordItems(ctx, run.tenant.Key, run.folder.Name, changeKind, model.OutcomeFailure, 1)
	run.logger.Error("Failed to persist record", "external_id", entry.ExternalID, "error", err)

	entry.Outcome = model.OutcomeFailure
	entry.Message = "Failed to persist record"
	entry.ErrorDetail = err.Error()
	m.recorder.Record(ctx, entry)
}

// writeContext detaches a write from cancellation so a started write completes,
// bounded by the store timeout
func (*defaultManager) writeContext(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine.GetDBTimeout())
}

func canceled(ctx context.Context) *Error {
	return &Error{Err: ctx.Err(), Message: "Folder sync canceled", Kind: ErrorKindCanceled}
}

func summaryMessage(r *Result) string {
	return fmt.Sprintf("listed=%d filtered=%d new=%d changed=%d unchanged=%d removed=%d written=%d failed=%d transient=%d deferred=%d",
		r.Listed, r.Filtered, r.New, r.Changed, r.Unchanged, r.Removed, r.Written, r.Failed, r.Transient, r.Deferred)
}
