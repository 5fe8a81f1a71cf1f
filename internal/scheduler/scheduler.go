// Package scheduler exposes the background-job entry points an external
// cron invokes nightly (spec.md §4's "Background scheduler hooks" row):
// RunNightlyStats and RunRebuildRatings wrap internal/stats with resume
// bookkeeping and Prometheus instrumentation, grounded on
// replay-api-replay-api's pkg/infra/metrics/prometheus.go promauto usage.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mideind/explo/internal/stats"
)

var (
	nightlyRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explo_nightly_run_duration_seconds",
			Help:    "Duration of nightly scheduler runs by kind (stats, ratings)",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	nightlyGamesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explo_nightly_games_processed_total",
			Help: "Total completed games folded into nightly stats runs",
		},
	)

	nightlyRunFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explo_nightly_run_failures_total",
			Help: "Total nightly scheduler run failures by kind",
		},
		[]string{"kind"},
	)
)

// Scheduler drives the nightly stats/ratings pipeline on behalf of an
// external cron or a long-running job process (cmd/statsjob).
type Scheduler struct {
	stats *stats.Service
}

// New returns a Scheduler over the given stats service.
func New(statsSvc *stats.Service) *Scheduler {
	return &Scheduler{stats: statsSvc}
}

// RunNightlyStats resumes the stats pipeline from the last successful
// run's `to` (or 24h before deadline on first run) and folds completed
// games up through deadline. It is idempotent and safe to retry: a
// partial failure leaves the next invocation free to re-seed from the
// same `from` and overwrite the same `to` snapshot (internal/stats'
// "Resume semantics").
func (s *Scheduler) RunNightlyStats(ctx context.Context, deadline time.Time) error {
	start := time.Now()
	defer func() {
		nightlyRunDuration.WithLabelValues("stats").Observe(time.Since(start).Seconds())
	}()

	from, err := s.resumeFrom(ctx, deadline)
	if err != nil {
		nightlyRunFailures.WithLabelValues("stats").Inc()
		return fmt.Errorf("scheduler: determining resume point: %w", err)
	}

	n, err := s.stats.RunStats(ctx, from, deadline)
	if err != nil {
		nightlyRunFailures.WithLabelValues("stats").Inc()
		return fmt.Errorf("scheduler: running nightly stats: %w", err)
	}
	nightlyGamesProcessed.Add(float64(n))
	return nil
}

// RunRebuildRatings recomputes the top-N scoreboards as of now. It is
// idempotent: RebuildRatings always replaces the entire rating-row table
// rather than appending to it.
func (s *Scheduler) RunRebuildRatings(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() {
		nightlyRunDuration.WithLabelValues("ratings").Observe(time.Since(start).Seconds())
	}()

	if err := s.stats.RebuildRatings(ctx, now); err != nil {
		nightlyRunFailures.WithLabelValues("ratings").Inc()
		return fmt.Errorf("scheduler: rebuilding ratings: %w", err)
	}
	return nil
}

// resumeFrom returns the `from` boundary for the next stats run, read
// from the newest "stats" completion: a failed run's own `from` (so the
// retry re-seeds from the same point), a successful run's `to`, or 24
// hours before deadline if no usable completion exists. Days without any
// run are covered by the next run, which starts at the older `to`.
func (s *Scheduler) resumeFrom(ctx context.Context, deadline time.Time) (time.Time, error) {
	last, err := s.stats.LatestCompletion(ctx, "stats")
	if err != nil {
		return time.Time{}, err
	}
	if last != nil && !last.Success && last.TsFrom.Before(deadline) {
		return last.TsFrom, nil
	}
	if last != nil && last.Success && last.TsTo.Before(deadline) {
		return last.TsTo, nil
	}
	return deadline.Add(-24 * time.Hour), nil
}
