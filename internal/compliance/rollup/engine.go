package rollup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"conforma/internal/audit"
	"conforma/internal/compliance"
	"conforma/internal/compliance/rollup/metrics"
	"conforma/internal/platform/locks"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// AuditPublisher receives rollup recomputation events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine recomputes derived statuses from source links and measures. It is
// the only writer of ComplianceRecord.Status and the only automatic writer
// of ControlMeasure.Status. Recomputation is serialized per record: a writer
// never writes a value computed from a partial read.
type Engine struct {
	store   compliance.Store
	locks   *locks.Keyed
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) { e.auditor = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithWorkers bounds sweep concurrency across records.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewEngine(store compliance.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		locks:   locks.NewKeyed(),
		logger:  slog.Default(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result reports what a sweep changed.
type Result struct {
	MeasuresUpdated          int
	ComplianceRecordsUpdated int
}

// Completion returns the derived completeness view for one measure.
func (e *Engine) Completion(ctx context.Context, measureID string) (Completion, error) {
	m, err := e.store.GetMeasure(ctx, measureID)
	if err != nil {
		return Completion{}, translateStoreErr(err, "control measure")
	}
	links, err := e.store.ListLinkedEvidence(ctx, measureID)
	if err != nil {
		return Completion{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "evidence links unavailable")
	}
	return MeasureCompletion(m, links), nil
}

// RecalculateMeasure recomputes one measure's status from its links and
// persists it when it changed. Serialized with other recomputations of the
// same record.
func (e *Engine) RecalculateMeasure(ctx context.Context, measureID string) (compliance.MeasureStatus, bool, error) {
	m, err := e.store.GetMeasure(ctx, measureID)
	if err != nil {
		return "", false, translateStoreErr(err, "control measure")
	}

	e.locks.Lock(m.RecordID)
	defer e.locks.Unlock(m.RecordID)

	status, changed, err := e.recalculateMeasureLocked(ctx, m)
	if err != nil {
		return "", false, err
	}
	return status, changed, nil
}

func (e *Engine) recalculateMeasureLocked(ctx context.Context, m *compliance.ControlMeasure) (compliance.MeasureStatus, bool, error) {
	links, err := e.store.ListLinkedEvidence(ctx, m.ID)
	if err != nil {
		return "", false, dErrors.Wrap(err, dErrors.CodeUnavailable, "evidence links unavailable")
	}
	next := NextMeasureStatus(m, links)
	if next == m.Status {
		return next, false, nil
	}
	if err := e.store.UpdateMeasureStatus(ctx, m.ID, next); err != nil {
		return "", false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist measure status")
	}
	e.emitRecompute(ctx, m.TenantID, "control_measure", m.ID, string(m.Status), string(next))
	if e.metrics != nil {
		e.metrics.MeasuresUpdated.Inc()
	}
	return next, true, nil
}

// RecalculateRecord refreshes every measure under the record and then folds
// the record status. Safe to run repeatedly; each invocation recomputes from
// source links, never from the previous computed value.
func (e *Engine) RecalculateRecord(ctx context.Context, recordID string) (compliance.RecordStatus, Result, error) {
	e.locks.Lock(recordID)
	defer e.locks.Unlock(recordID)
	return e.recalculateRecordLocked(ctx, recordID)
}

func (e *Engine) recalculateRecordLocked(ctx context.Context, recordID string) (compliance.RecordStatus, Result, error) {
	var res Result

	record, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return "", res, translateStoreErr(err, "compliance record")
	}

	measures, err := e.store.ListMeasuresByRecord(ctx, recordID)
	if err != nil {
		return "", res, dErrors.Wrap(err, dErrors.CodeUnavailable, "control measures unavailable")
	}

	statuses := make([]compliance.MeasureStatus, 0, len(measures))
	for _, m := range measures {
		status, changed, err := e.recalculateMeasureLocked(ctx, m)
		if err != nil {
			return "", res, err
		}
		if changed {
			res.MeasuresUpdated++
		}
		statuses = append(statuses, status)
	}

	folded := FoldRecordStatus(statuses)
	if folded != record.Status {
		if err := e.store.UpdateRecordStatus(ctx, recordID, folded); err != nil {
			return "", res, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist record status")
		}
		res.ComplianceRecordsUpdated++
		e.emitRecompute(ctx, record.TenantID, "compliance_record", recordID, string(record.Status), string(folded))
		if e.metrics != nil {
			e.metrics.RecordsUpdated.Inc()
		}
	}
	return folded, res, nil
}

// RecalculateAll sweeps every record in the tenant. Records are processed
// concurrently up to the worker bound but each record is recomputed under
// its own lock, so per-record updates stay atomic. Cancellation is checked
// between records; an aborted sweep leaves no record half-applied.
func (e *Engine) RecalculateAll(ctx context.Context, tenantID string) (Result, error) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.SweepsStarted.Inc()
	}

	records, err := e.store.ListRecordsByTenant(ctx, tenantID)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance records unavailable")
	}

	var mu sync.Mutex
	var total Result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, record := range records {
		recordID := record.ID
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, res, err := e.RecalculateRecord(gctx, recordID)
			if err != nil {
				// A missing record mid-sweep is not an error; it was
				// deleted between listing and recomputation.
				if dErrors.HasCode(err, dErrors.CodeNotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			total.MeasuresUpdated += res.MeasuresUpdated
			total.ComplianceRecordsUpdated += res.ComplianceRecordsUpdated
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		// Records skipped by the break above produced no goroutine error;
		// an aborted sweep still reports the cancellation.
		err = ctx.Err()
	}

	if e.metrics != nil {
		e.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.InfoContext(ctx, "rollup sweep finished",
		"tenant_id", tenantID,
		"records", len(records),
		"measures_updated", total.MeasuresUpdated,
		"records_updated", total.ComplianceRecordsUpdated,
		"duration", time.Since(start),
	)
	return total, err
}

func (e *Engine) emitRecompute(ctx context.Context, tenantID, resourceType, resourceID, from, to string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Emit(ctx, audit.Event{
		TenantID:     tenantID,
		EventType:    audit.EventRollupRecomputed,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      map[string]string{"from": from, "to": to},
	}); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed", "event", audit.EventRollupRecomputed, "error", err)
	}
}

func translateStoreErr(err error, entity string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, entity+" store unavailable")
}
