// Package runner orchestrates scheduled reconciliation: fetch a snapshot,
// run the engine, record the outcome and fan results out to the analytics
// sink, notifier and websocket subscribers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/notify"
	"pendle-watch/internal/observability"
	"pendle-watch/internal/reconcile"
	"pendle-watch/internal/storage"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still executing. Runs never overlap.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// Fetcher retrieves the current market snapshot.
type Fetcher interface {
	FetchMarkets(ctx context.Context) ([]*domain.Market, error)
}

// Runner drives reconciliation runs. Sync logs, the analytics sink, the
// notifier and the broadcast hook are all optional; the engine result is
// authoritative regardless of delivery failures.
type Runner struct {
	fetcher   Fetcher
	engine    *reconcile.Engine
	syncLogs  storage.SyncLogStore
	metrics   storage.MarketMetricStore
	notifier  notify.Notifier
	obs       *observability.Metrics
	broadcast func(*reconcile.Report)
	interval  time.Duration
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// Options configures a Runner.
type Options struct {
	Fetcher Fetcher
	Engine  *reconcile.Engine

	// SyncLogs, when set, receives one outcome row per run.
	SyncLogs storage.SyncLogStore

	// Metrics, when set, receives per-project samples after each
	// successful run. Write failures are logged, not fatal.
	Metrics storage.MarketMetricStore

	// Notifier, when set, receives the run announcement when the
	// universe changed.
	Notifier notify.Notifier

	// Observability registers run counters. Optional.
	Observability *observability.Metrics

	// Broadcast, when set, is called with every successful run report.
	Broadcast func(*reconcile.Report)

	// Interval between scheduled runs. Defaults to 1 hour.
	Interval time.Duration

	// Logger defaults to a discarding logger.
	Logger *log.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Runner.
func New(opts Options) *Runner {
	r := &Runner{
		fetcher:   opts.Fetcher,
		engine:    opts.Engine,
		syncLogs:  opts.SyncLogs,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		obs:       opts.Observability,
		broadcast: opts.Broadcast,
		interval:  opts.Interval,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if r.interval == 0 {
		r.interval = time.Hour
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard, "", 0)
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run executes one reconciliation immediately, then repeats on the
// configured interval until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Printf("initial run failed: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				r.logger.Printf("scheduled run failed: %v", err)
			}
		}
	}
}

// RunOnce executes a single reconciliation run. Concurrent calls beyond the
// first return ErrRunInProgress.
func (r *Runner) RunOnce(ctx context.Context) (*reconcile.Report, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	started := r.now()

	snapshot, err := r.fetcher.FetchMarkets(ctx)
	if err != nil {
		r.recordOutcome(ctx, domain.SyncStatusFailed, fmt.Sprintf("fetch markets: %v", err))
		return nil, fmt.Errorf("fetch markets: %w", err)
	}
	if r.obs != nil {
		r.obs.SnapshotSize.Set(float64(len(snapshot)))
	}

	report, err := r.engine.Reconcile(ctx, snapshot)
	if err != nil {
		r.recordOutcome(ctx, domain.SyncStatusFailed, fmt.Sprintf("reconcile: %v", err))
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	r.recordOutcome(ctx, domain.SyncStatusSuccess, report.Summary())
	r.observeRun(started, report)
	r.writeMetricPoints(ctx, snapshot)
	r.announce(ctx, report)

	if r.broadcast != nil {
		r.broadcast(report)
	}
	return report, nil
}

func (r *Runner) recordOutcome(ctx context.Context, status, message string) {
	if r.syncLogs == nil {
		return
	}
	err := r.syncLogs.Insert(ctx, &domain.SyncLog{
		SyncType: domain.SyncTypeProjects,
		SyncTime: r.now().UTC(),
		Status:   status,
		Message:  message,
	})
	if err != nil {
		r.logger.Printf("record sync outcome: %v", err)
	}
	if r.obs != nil {
		r.obs.RunsTotal.WithLabelValues(status).Inc()
	}
}

func (r *Runner) observeRun(started time.Time, report *reconcile.Report) {
	if r.obs == nil {
		return
	}
	r.obs.RunDuration.Observe(r.now().Sub(started).Seconds())
	r.obs.ProjectsCreated.Add(float64(report.Created))
	r.obs.ProjectsUpdated.Add(float64(report.Updated))
	r.obs.ProjectsAdded.Add(float64(len(report.Added)))
	r.obs.ProjectsRemoved.Add(float64(len(report.Removed)))
	r.obs.ProjectsRestored.Add(float64(report.Restored))
	r.obs.LastSuccessfulRun.Set(float64(r.now().Unix()))
}

// writeMetricPoints samples the snapshot into the analytics sink, one point
// per entry that carries any market data.
func (r *Runner) writeMetricPoints(ctx context.Context, snapshot []*domain.Market) {
	if r.metrics == nil {
		return
	}

	ts := r.now().UTC().UnixMilli()
	points := make([]*domain.MarketMetricPoint, 0, len(snapshot))
	for _, m := range snapshot {
		if m.Address == "" {
			continue
		}
		if m.TVL == nil && m.Volume24h == nil && m.ImpliedAPY == nil {
			continue
		}
		p := &domain.MarketMetricPoint{
			Address:     m.Address,
			TimestampMs: ts,
		}
		if m.ChainID != nil {
			p.ChainID = *m.ChainID
		}
		if m.TVL != nil {
			p.TVL = *m.TVL
		}
		if m.Volume24h != nil {
			p.Volume24h = *m.Volume24h
		}
		if m.ImpliedAPY != nil {
			p.ImpliedAPY = *m.ImpliedAPY
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return
	}

	if err := r.metrics.InsertBulk(ctx, points); err != nil {
		r.logger.Printf("write metric points: %v", err)
		return
	}
	if r.obs != nil {
		r.obs.MetricPointsWritten.Add(float64(len(points)))
	}
}

func (r *Runner) announce(ctx context.Context, report *reconcile.Report) {
	if r.notifier == nil {
		return
	}
	msg := notify.FormatReport(report)
	if msg == "" {
		return
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		r.logger.Printf("send notification: %v", err)
		if r.obs != nil {
			r.obs.NotificationErrors.Inc()
		}
		return
	}
	if r.obs != nil {
		r.obs.NotificationsSent.Inc()
	}
}
