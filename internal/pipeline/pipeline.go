package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrAllSourcesUnavailable is returned by Run when no source produced a
// usable bulletin.
var ErrAllSourcesUnavailable = errors.New("all bulletin sources unavailable")

// ErrEmptyBulletin marks a fetched bulletin with no text.
var ErrEmptyBulletin = errors.New("empty bulletin")

// BulletinFetcher retrieves the raw bulletin for one source key.
type BulletinFetcher interface {
	Fetch(ctx context.Context, source string) (domain.Bulletin, error)
}

// RecordSink persists the records of one run.
type RecordSink interface {
	Name() string
	Store(ctx context.Context, runID string, records []domain.OutputRecord) error
}

// Notifier delivers the malformed-report notification.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// NotificationGuard provides at-most-once delivery per notification key.
type NotificationGuard interface {
	// Acquire returns true if key has not been claimed yet.
	Acquire(ctx context.Context, key string) (bool, error)
	// Release drops a claim so delivery can be retried.
	Release(ctx context.Context, key string) error
}

// RunResult is the outcome of one pass over all sources.
type RunResult struct {
	RunID        string
	Records      []domain.OutputRecord
	Malformed    []domain.MalformedReport
	Notification domain.Notification
	SourceErrors map[string]error
}

// Pipeline orchestrates fetch, segment, transform, store, and notify.
type Pipeline struct {
	sources     []string
	fetcher     BulletinFetcher
	segmenter   *domain.Segmenter
	transformer *ReportTransformer
	sinks       []RecordSink
	notifier    Notifier
	guard       NotificationGuard
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool

	// runMu serializes scheduled and on-demand runs.
	runMu sync.Mutex
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithSinks adds record sinks, called in order after every run.
func WithSinks(sinks ...RecordSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithNotifier sets the malformed-report notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithGuard sets the notification de-duplication guard.
func WithGuard(g NotificationGuard) Option {
	return func(p *Pipeline) { p.guard = g }
}

// WithClock overrides the clock used for timestamps and scheduling.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline that processes sources in the given order.
func New(sources []string, f BulletinFetcher, s *domain.Segmenter, t *ReportTransformer, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		sources:     sources,
		fetcher:     f,
		segmenter:   s,
		transformer: t,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a run has completed with at least one
// source available.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run processes every source once. A source that fails to fetch or yields
// an empty bulletin contributes no records and the run continues. Sink and
// notifier failures are logged and returned joined; the result is still
// complete. ErrAllSourcesUnavailable is returned when no source succeeded.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := p.clock.Now()
	result := RunResult{
		RunID:        uuid.NewString(),
		SourceErrors: make(map[string]error),
	}
	logger := p.logger.With("run_id", result.RunID)
	logger.Info("run started", "sources", len(p.sources))

	malformed := domain.NewMalformedSet()
	for _, src := range p.sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, err := p.processSource(ctx, src, malformed, logger)
		if err != nil {
			result.SourceErrors[src] = err
			p.metrics.SourceFailures.WithLabelValues(src).Inc()
			logger.Warn("source skipped", "source", src, "error", err)
			continue
		}
		result.Records = append(result.Records, records...)
	}
	result.Malformed = malformed.Reports()

	if len(result.SourceErrors) == len(p.sources) {
		p.metrics.RunsTotal.WithLabelValues("failed").Inc()
		if len(p.sources) == 0 {
			return result, fmt.Errorf("%w: no sources configured", ErrAllSourcesUnavailable)
		}
		errs := make([]error, 0, len(p.sources))
		for _, src := range p.sources {
			errs = append(errs, result.SourceErrors[src])
		}
		return result, fmt.Errorf("%w: %w", ErrAllSourcesUnavailable, errors.Join(errs...))
	}

	notification, err := domain.BuildNotification(result.Malformed, p.clock.Now())
	if err != nil {
		logger.Error("build notification failed", "error", err)
	}
	result.Notification = notification

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, p.store(ctx, result, logger)...)
	if err := p.notify(ctx, notification, logger); err != nil {
		errs = append(errs, err)
	}

	outcome := "success"
	if len(errs) > 0 || len(result.SourceErrors) > 0 {
		outcome = "partial"
	}
	p.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)

	logger.Info("run complete",
		"records", len(result.Records),
		"malformed", len(result.Malformed),
		"failed_sources", len(result.SourceErrors),
	)
	return result, errors.Join(errs...)
}

// processSource fetches and transforms one bulletin.
func (p *Pipeline) processSource(ctx context.Context, src string, malformed *domain.MalformedSet, logger *slog.Logger) ([]domain.OutputRecord, error) {
	bulletin, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(bulletin.Text) == "" {
		return nil, fmt.Errorf("%s: %w", src, ErrEmptyBulletin)
	}
	if bulletin.Source == "" {
		bulletin.Source = src
	}

	reports := p.segmenter.Split(bulletin)
	records := make([]domain.OutputRecord, 0, len(reports))
	for _, r := range reports {
		rec, bad := p.transformer.Transform(r)
		records = append(records, rec)
		if bad != nil && malformed.Add(*bad) {
			p.metrics.MalformedReports.WithLabelValues(src).Inc()
			logger.Warn("malformed report", "source", src, "id", rec.ID, "reason", bad.Reason)
		}
	}
	p.metrics.ReportsParsed.WithLabelValues(src).Add(float64(len(records)))
	logger.Info("source processed", "source", src, "reports", len(records))
	return records, nil
}

func (p *Pipeline) store(ctx context.Context, result RunResult, logger *slog.Logger) []error {
	if len(result.Records) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Store(ctx, result.RunID, result.Records); err != nil {
			p.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			logger.Error("store records failed", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
			continue
		}
		p.metrics.RecordsStored.WithLabelValues(sink.Name()).Add(float64(len(result.Records)))
	}
	return errs
}

// notify sends n at most once per key. A guard failure skips delivery; a
// send failure releases the claim so a later run can retry.
func (p *Pipeline) notify(ctx context.Context, n domain.Notification, logger *slog.Logger) error {
	if n.IsEmpty() || p.notifier == nil {
		return nil
	}

	if p.guard != nil {
		ok, err := p.guard.Acquire(ctx, n.Key)
		if err != nil {
			p.metrics.Notifications.WithLabelValues("error").Inc()
			return fmt.Errorf("acquire notification guard: %w", err)
		}
		if !ok {
			p.metrics.Notifications.WithLabelValues("suppressed").Inc()
			logger.Info("notification already sent", "key", n.Key, "reports", len(n.Reports))
			return nil
		}
	}

	if err := p.notifier.Send(ctx, n); err != nil {
		p.metrics.Notifications.WithLabelValues("error").Inc()
		if p.guard != nil {
			if rerr := p.guard.Release(ctx, n.Key); rerr != nil {
				logger.Warn("release notification guard failed", "error", rerr)
			}
		}
		return fmt.Errorf("send notification: %w", err)
	}

	p.metrics.Notifications.WithLabelValues("sent").Inc()
	logger.Info("notification sent", "reports", len(n.Reports))
	return nil
}

// Schedule runs the pipeline immediately and then every interval until ctx
// is cancelled. Run errors are logged; they do not stop the schedule.
func (p *Pipeline) Schedule(ctx context.Context, interval time.Duration) error {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.logger.Info("scheduler started", "interval", interval)
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("scheduled run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
	p.logger.Info("scheduler stopping", "reason", ctx.Err())
	return nil
}
