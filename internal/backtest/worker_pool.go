package backtest

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fxreplay/nanpin-backtest/internal/monitoring"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
	"github.com/fxreplay/nanpin-backtest/pkg/data"
)

// DayResult is the outcome of one independent single-day run.
type DayResult struct {
	RunID string     `json:"run_id"`
	Day   time.Time  `json:"day"`
	Ticks int        `json:"ticks"`
	Run   *RunResult `json:"result"`
}

// ParallelRunner replays each calendar day of a range as an independent run
// with its own capital, strategy state and indicator warm-up, spreading the
// days over a bounded worker pool. Day independence is what makes the split
// legal: no state crosses a day boundary.
type ParallelRunner struct {
	params   *config.Params
	provider data.TickProvider
	workers  int

	LogMode bool
	Metrics *monitoring.Metrics
}

// NewParallelRunner creates a runner with the given worker count; values
// below 1 default to GOMAXPROCS.
func NewParallelRunner(p *config.Params, provider data.TickProvider, workers int) *ParallelRunner {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ParallelRunner{
		params:   p,
		provider: provider,
		workers:  workers,
	}
}

// Run executes one run per day of [start, end] and returns the per-day
// results in chronological order plus the merged aggregate. Days with no
// ticks produce a DayResult with a zero-tick run.
func (r *ParallelRunner) Run(ctx context.Context, start, end time.Time) ([]DayResult, *RunResult, error) {
	days := splitDays(start, end)
	if len(days) == 0 {
		return nil, nil, fmt.Errorf("empty range %s..%s", start, end)
	}

	results := make([]DayResult, len(days))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)

	for i, day := range days {
		i, day := i, day
		group.Go(func() error {
			runID := uuid.New().String()
			started := time.Now()

			ticks, err := r.provider.LoadRange(day.start, day.end)
			if err != nil {
				return fmt.Errorf("load day %s: %w", day.start.Format("2006-01-02"), err)
			}

			engine := NewEngine(r.params.Clone())
			engine.Metrics = r.Metrics
			run, err := engine.Run(ctx, ticks)
			if err != nil {
				return fmt.Errorf("run day %s: %w", day.start.Format("2006-01-02"), err)
			}
			r.Metrics.ObserveRunDuration(time.Since(started))

			if r.LogMode {
				log.Printf("day %s run=%s ticks=%d realized=%.2f margin_calls=%d",
					day.start.Format("2006-01-02"), runID, run.Ticks,
					run.RealizedPnL, run.MarginCalls)
			}

			results[i] = DayResult{
				RunID: runID,
				Day:   day.start,
				Ticks: run.Ticks,
				Run:   run,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	merged := &RunResult{Symbol: r.params.Symbol}
	for _, dr := range results {
		merged.Merge(dr.Run)
	}
	return results, merged, nil
}

type dayRange struct {
	start, end time.Time
}

// splitDays cuts [start, end] at midnight boundaries in start's location.
func splitDays(start, end time.Time) []dayRange {
	if end.Before(start) {
		return nil
	}
	var days []dayRange
	cursor := start
	for cursor.Before(end) || cursor.Equal(end) {
		y, m, d := cursor.Date()
		next := time.Date(y, m, d, 0, 0, 0, 0, cursor.Location()).AddDate(0, 0, 1)
		dayEnd := next.Add(-time.Nanosecond)
		if dayEnd.After(end) {
			dayEnd = end
		}
		days = append(days, dayRange{start: cursor, end: dayEnd})
		cursor = next
	}
	return days
}
