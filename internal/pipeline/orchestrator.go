package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"minewatch/internal/alerts"
	"minewatch/internal/anomaly"
	"minewatch/internal/config"
	"minewatch/internal/daterange"
	"minewatch/internal/excavation"
	"minewatch/internal/imagery"
	"minewatch/internal/logging"
	"minewatch/internal/mines"
	"minewatch/internal/notifications"
	"minewatch/internal/pixels"
	"minewatch/internal/preprocess"
	"minewatch/internal/services"
	"minewatch/internal/store"
	"minewatch/internal/violations"
	"minewatch/internal/zones"
)

// MineLookup resolves catalog entries.
type MineLookup interface {
	Lookup(id int64) (mines.Mine, error)
}

// Store is the persistence surface the orchestrator needs. A zero range passed
// to Observations or Violations selects everything stored for the mine.
type Store interface {
	ExistingRange(ctx context.Context, mineID int64) (*daterange.Range, error)
	Observations(ctx context.Context, mineID int64, r daterange.Range) ([]pixels.Observation, error)
	Violations(ctx context.Context, mineID int64, r daterange.Range) ([]violations.Record, error)
	SaveBatch(ctx context.Context, b store.Batch) (store.Counts, error)
}

// Orchestrator runs pipeline invocations against a catalog, a store, and an
// imagery provider. It is safe for concurrent use; each Run owns its data.
type Orchestrator struct {
	catalog     MineLookup
	store       Store
	provider    imagery.Provider
	scorer      anomaly.Scorer
	synthesizer zones.Synthesizer
	notifier    notifications.Service
	metrics     *Metrics
	logger      *slog.Logger

	pixelArea float64
	minWindow int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithScorer replaces the isolation forest built from configuration.
func WithScorer(s anomaly.Scorer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scorer = s
		}
	}
}

// WithNotifier sets the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New builds an orchestrator from configuration.
func New(cfg *config.Config, catalog MineLookup, st Store, provider imagery.Provider, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config is required", nil)
	}
	if catalog == nil || st == nil || provider == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "catalog, store, and provider are required", nil)
	}
	det := cfg.Detection
	o := &Orchestrator{
		catalog:  catalog,
		store:    st,
		provider: provider,
		scorer:   anomaly.NewIsolationForest(det.Trees, det.SampleSize, det.Seed),
		synthesizer: zones.Synthesizer{
			UpperQuantile: det.ZoneQuantileUpper,
			LowerQuantile: det.ZoneQuantileLower,
			BufferDegrees: det.ZoneBufferDegrees,
			MinPoints:     det.ZoneMinPoints,
		},
		notifier:  notifications.NewService(nil),
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		pixelArea: det.PixelAreaM2,
		minWindow: det.MinWindowDays,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// batch is one resolved range carried from analysis to persistence.
type batch struct {
	window    daterange.Range
	obs       []pixels.Observation
	records   []violations.Record
	alerts    []alerts.Alert
	excavated int
}

// Run brings req.MineID up to date over req.Window. Progress updates are sent
// to reporter when it is non-nil and never decrease.
func (o *Orchestrator) Run(ctx context.Context, req Request, reporter Reporter) (Result, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = services.WithMineID(ctx, req.MineID)
	ctx = services.WithRequestID(ctx, req.RequestID)
	logger := logging.WithContext(ctx, o.logger)
	progress := newTracker(reporter, logger)
	progress.report(StageQueued, progressQueued, "queued")

	started := time.Now()
	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("window", req.Window.String()),
	)

	result, err := o.run(ctx, req, progress)
	elapsed := time.Since(started)
	if err != nil {
		o.metrics.observeRun(OutcomeFailed, elapsed)
		logging.ErrorWithContext(logger, "pipeline run failed", "run_failure",
			logging.Error(err),
			logging.Duration("duration", elapsed),
			logging.String(logging.FieldErrorHint, errorHint(err)),
			logging.Bool("retryable", services.Retryable(err)),
		)
		o.publish(ctx, logger, notifications.EventError, notifications.Payload{
			"error":   err.Error(),
			"context": fmt.Sprintf("mine #%d (%s)", req.MineID, req.Window),
		})
		return result, err
	}

	outcome := OutcomeCompleted
	if result.Skipped {
		outcome = OutcomeSkipped
	}
	o.metrics.observeRun(outcome, elapsed)
	progress.report(StageCompleted, progressCompleted, "completed")
	logger.Info("pipeline run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("outcome", outcome),
		logging.Int("ranges", len(result.Processed)),
		logging.Int("observations_inserted", result.Inserted.Observations),
		logging.Int("violations_inserted", result.Inserted.Violations),
		logging.Int("alerts_inserted", result.Inserted.Alerts),
		logging.Duration("duration", elapsed),
	)
	o.publish(ctx, logger, notifications.EventPipelineCompleted, notifications.Payload{
		"mine":         req.MineID,
		"ranges":       len(result.Processed),
		"observations": result.Inserted.Observations,
		"violations":   result.Inserted.Violations,
		"alerts":       result.Inserted.Alerts,
		"duration":     elapsed,
		"skipped":      result.Skipped,
	})
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, progress *tracker) (Result, error) {
	result := Result{MineID: req.MineID}
	if err := req.Validate(); err != nil {
		return result, err
	}

	var (
		mine   mines.Mine
		ranges []daterange.Range
	)
	err := o.stage(ctx, StageResolve, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		mine, err = o.catalog.Lookup(req.MineID)
		if err != nil {
			return err
		}
		existing, err := o.store.ExistingRange(ctx, req.MineID)
		if err != nil {
			return err
		}
		result.Existing = existing
		ranges = daterange.ResolveWindow(req.Window, existing, o.minWindow)

		reason := "no stored observations"
		if existing != nil {
			reason = "stored " + existing.String()
		}
		decision := "fetch"
		if len(ranges) == 0 {
			decision = "skip"
		}
		attrs := logging.DecisionAttrs("range_resolution", decision, reason)
		attrs = append(attrs, logging.Int("ranges", len(ranges)))
		logger.Info("date ranges resolved", logging.Args(attrs...)...)
		return nil
	})
	if err != nil {
		return result, err
	}
	progress.report(StageResolve, progressResolved, fmt.Sprintf("%d ranges to fetch", len(ranges)))
	if len(ranges) == 0 {
		result.Skipped = true
		return result, nil
	}

	result.AlertsByKind = make(map[alerts.Kind]int, len(alerts.Kinds))
	for i, window := range ranges {
		rangeCtx := services.WithRange(ctx, window.String())
		b, err := o.processRange(rangeCtx, mine, window, &result, func(stage string, part float64, message string) {
			progress.report(stage, share(progressResolved, progressRangesShare, i, len(ranges), part), message)
		})
		if err != nil {
			return result, err
		}
		if b == nil {
			result.Empty = append(result.Empty, window)
			continue
		}
		result.Processed = append(result.Processed, window)
		o.notifyAlerts(rangeCtx, b.alerts)
	}
	return result, nil
}

// processRange takes one range from fetch to commit. Zones are synthesized
// from every stored observation for the mine plus the range's own rows, and
// alerts are classified over the stored violation history so trackers carry
// across range boundaries. Only alerts dated inside window are written; the
// range's observations, violations, and alerts commit together. It returns
// nil when the provider had no usable rows.
func (o *Orchestrator) processRange(ctx context.Context, mine mines.Mine, window daterange.Range, result *Result, report func(stage string, part float64, message string)) (*batch, error) {
	var b *batch
	err := o.stage(ctx, StageAnalysis, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		b, err = o.analyse(ctx, logger, mine, window)
		return err
	})
	if err != nil {
		return nil, err
	}
	if b == nil {
		report(StageAnalysis, 1, fmt.Sprintf("no samples for %s", window))
		return nil, nil
	}
	result.Excavated += b.excavated
	report(StageAnalysis, 0.5, fmt.Sprintf("analysed %s", window))

	var (
		stored []pixels.Observation
		zs     []zones.Zone
	)
	err = o.stage(ctx, StageZones, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		stored, err = o.store.Observations(ctx, mine.ID, daterange.Range{})
		if err != nil {
			return err
		}
		all := make([]pixels.Observation, 0, len(stored)+len(b.obs))
		all = append(append(all, stored...), b.obs...)
		zs = o.synthesizer.Synthesize(all)
		for _, z := range zs {
			logger.Info("zone synthesized",
				logging.String("zone_type", string(z.Type)),
				logging.Int("points", len(z.Centers)),
				logging.Int("observations", len(all)),
			)
		}
		if len(zs) == 0 {
			logging.WarnWithContext(logger, "no protected zones synthesized", "zones_empty",
				logging.String(logging.FieldErrorHint, "the sampled area may be too uniform for percentile zones"),
				logging.String(logging.FieldImpact, "no violations can be detected for this range"),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Zones = len(zs)
	report(StageZones, 0.6, fmt.Sprintf("%d zones", len(zs)))

	err = o.stage(ctx, StageAlerts, func(ctx context.Context, logger *slog.Logger) error {
		b.records = violations.Detect(b.obs, zs, o.pixelArea)
		history, err := o.store.Violations(ctx, mine.ID, daterange.Range{})
		if err != nil {
			return err
		}
		records := make([]violations.Record, 0, len(history)+len(b.records))
		records = append(append(records, history...), b.records...)
		dates := append(pixels.Dates(stored), pixels.Dates(b.obs)...)
		for _, a := range alerts.Classify(records, dates) {
			if window.Contains(a.Date) {
				b.alerts = append(b.alerts, a)
			}
		}
		byKind := alerts.CountByKind(b.alerts)
		logger.Info("alerts classified",
			logging.Int("violations", len(b.records)),
			logging.Int("alerts", len(b.alerts)),
			logging.Int("first", byKind[alerts.KindFirst]),
			logging.Int("expansion", byKind[alerts.KindExpansion]),
			logging.Int("persistent", byKind[alerts.KindPersistent]),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	report(StageAlerts, 0.7, fmt.Sprintf("%d alerts", len(b.alerts)))

	err = o.stage(ctx, StagePersist, func(ctx context.Context, logger *slog.Logger) error {
		counts, err := o.store.SaveBatch(ctx, store.Batch{
			Observations: b.obs,
			Violations:   b.records,
			Alerts:       b.alerts,
		})
		if err != nil {
			return err
		}
		byKind := alerts.CountByKind(b.alerts)
		for kind, n := range byKind {
			result.AlertsByKind[kind] += n
		}
		result.Inserted = result.Inserted.Add(counts)
		o.metrics.observeInserted(counts)
		o.metrics.observeAlerts(byKind)
		logger.Info("range persisted",
			logging.Int("observations", len(b.obs)),
			logging.Int("observations_inserted", counts.Observations),
			logging.Int("violations", len(b.records)),
			logging.Int("violations_inserted", counts.Violations),
			logging.Int("alerts", len(b.alerts)),
			logging.Int("alerts_inserted", counts.Alerts),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	report(StagePersist, 1, fmt.Sprintf("persisted %s", window))
	return b, nil
}

// analyse fetches, cleans, scores, and flags one range. It returns nil when
// the provider has no usable rows for the range.
func (o *Orchestrator) analyse(ctx context.Context, logger *slog.Logger, mine mines.Mine, window daterange.Range) (*batch, error) {
	fetchStart := time.Now()
	raw, err := o.provider.Fetch(ctx, mine, window)
	o.metrics.observeFetch(time.Since(fetchStart))
	if err != nil {
		return nil, providerError(err)
	}
	if len(raw) == 0 {
		logger.Info("no samples for range", logging.Args(logging.DecisionAttrs("range_fetch", "empty", "provider returned no rows")...)...)
		return nil, nil
	}

	obs, report := preprocess.Clean(raw)
	if dropped := report.Input - report.Kept; dropped > 0 {
		logging.WarnWithContext(logger, "dropped unusable samples", "samples_dropped",
			logging.Int("input", report.Input),
			logging.Int("invalid_dates", report.InvalidDates),
			logging.Int("non_finite", report.NonFinite),
			logging.Int("duplicates", report.Duplicates),
			logging.String(logging.FieldErrorHint, "inspect the provider output for malformed rows"),
			logging.String(logging.FieldImpact, "dropped samples are not scored or stored"),
		)
	}
	if len(obs) == 0 {
		return nil, nil
	}

	matrix, err := preprocess.Features(obs)
	if err != nil {
		return nil, err
	}
	if err := anomaly.ScoreObservations(o.scorer, obs, matrix); err != nil {
		return nil, err
	}
	excavated := excavation.Flag(obs)

	anomalous := 0
	for _, ob := range obs {
		if ob.Anomalous() {
			anomalous++
		}
	}
	logger.Info("range analysed",
		logging.Int("observations", len(obs)),
		logging.Int("anomalous", anomalous),
		logging.Int("excavated", excavated),
		logging.Duration("fetch_duration", time.Since(fetchStart)),
	)
	return &batch{window: window, obs: obs, excavated: excavated}, nil
}

func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context, *slog.Logger) error) error {
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, o.logger)
	started := time.Now()
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTimeout, name, "start", "context done", err)
	}
	if err := fn(ctx, logger); err != nil {
		logger.Debug("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("duration", time.Since(started)),
		)
		return err
	}
	logger.Debug("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}

func (o *Orchestrator) notifyAlerts(ctx context.Context, items []alerts.Alert) {
	logger := logging.WithContext(ctx, o.logger)
	for _, a := range items {
		if a.Kind == alerts.KindPersistent {
			continue
		}
		o.publish(ctx, logger, notifications.EventAlert, notifications.Payload{
			"mine":  a.MineID,
			"kind":  string(a.Kind),
			"label": a.Kind.Label(),
			"zone":  a.ZoneType.Label(),
			"date":  a.Date.String(),
			"area":  a.AffectedArea,
		})
	}
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy topic and network connectivity"),
			logging.String(logging.FieldImpact, "notification was not delivered"),
		)
	}
}

// providerError tags provider failures that carry no classification of their
// own as ErrProviderUnavailable.
func providerError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, StageAnalysis, "fetch", "provider deadline exceeded", err)
	case errors.Is(err, services.ErrProviderUnavailable),
		errors.Is(err, services.ErrTimeout),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrInsufficientData),
		errors.Is(err, context.Canceled):
		return err
	default:
		return services.Wrap(services.ErrProviderUnavailable, StageAnalysis, "fetch", "", err)
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidDateRange), errors.Is(err, services.ErrValidation):
		return "check the request parameters"
	case errors.Is(err, services.ErrNotFound):
		return "check that the mine id exists in the catalog"
	case errors.Is(err, services.ErrInsufficientData):
		return "the range has too few distinct samples to score; widen the window"
	case errors.Is(err, services.ErrProviderUnavailable):
		return "check provider connectivity and retry"
	case errors.Is(err, services.ErrTimeout):
		return "increase provider.request_timeout or retry later"
	case errors.Is(err, services.ErrPersistence):
		return "check database file permissions and disk space"
	default:
		return "check logs for details"
	}
}
