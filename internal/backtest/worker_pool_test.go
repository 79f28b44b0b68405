package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
	"github.com/fxreplay/nanpin-backtest/pkg/types"
)

// memoryProvider serves a pre-built tick slice, filtered per request.
type memoryProvider struct {
	ticks []types.Tick
}

func (m *memoryProvider) LoadRange(start, end time.Time) ([]types.Tick, error) {
	var out []types.Tick
	for _, tick := range m.ticks {
		if tick.Time.Before(start) || tick.Time.After(end) {
			continue
		}
		out = append(out, tick)
	}
	return out, nil
}

func TestSplitDays(t *testing.T) {
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 3, 10, 0, 0, 0, time.UTC)

	days := splitDays(start, end)

	require.Len(t, days, 3)
	assert.Equal(t, start, days[0].start)
	assert.Equal(t, time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), days[1].start)
	assert.Equal(t, end, days[2].end)
	assert.True(t, days[0].end.Before(days[1].start))
}

func TestSplitDaysSingleDay(t *testing.T) {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)

	days := splitDays(start, end)

	require.Len(t, days, 1)
	assert.Equal(t, start, days[0].start)
	assert.Equal(t, end, days[0].end)
}

func TestSplitDaysInvertedRange(t *testing.T) {
	start := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, splitDays(start, start.AddDate(0, 0, -1)))
}

func TestParallelRunnerMatchesPerDayRuns(t *testing.T) {
	// Two days of flat ticks, one per minute.
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var ticks []types.Tick
	for i := 0; i < 2*24*60; i++ {
		ticks = append(ticks, types.Tick{
			Time: base.Add(time.Duration(i) * time.Minute),
			Bid:  2000.00,
			Ask:  2000.05,
		})
	}
	provider := &memoryProvider{ticks: ticks}
	p := config.DefaultParams()

	runner := NewParallelRunner(p, provider, 2)
	days, merged, err := runner.Run(context.Background(), base, base.AddDate(0, 0, 2).Add(-time.Minute))
	require.NoError(t, err)

	require.Len(t, days, 2)
	assert.Equal(t, days[0].Day.AddDate(0, 0, 1), days[1].Day)
	for _, day := range days {
		require.NotNil(t, day.Run)
		assert.Equal(t, 24*60, day.Ticks)
		assert.NotEmpty(t, day.RunID)
	}

	assert.Equal(t, 2*24*60, merged.Ticks)
	assert.Equal(t, days[0].Run.OpenedTrades+days[1].Run.OpenedTrades, merged.OpenedTrades)
	// Each day owns its own capital, so terminal funds add up.
	assert.InDelta(t, days[0].Run.FinalFunds+days[1].Run.FinalFunds, merged.FinalFunds, 1e-9)
}

func TestRunResultMerge(t *testing.T) {
	a := &RunResult{
		Start:               time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		End:                 time.Date(2025, 5, 1, 23, 0, 0, 0, time.UTC),
		Ticks:               100,
		ClosedTrades:        3,
		RealizedPnL:         50,
		FinalFunds:          250_050,
		MaxDrawdownAmount:   10,
		MaxLevelHoldSeconds: []float64{0, 30, 60},
	}
	b := &RunResult{
		Start:               time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		End:                 time.Date(2025, 5, 2, 23, 0, 0, 0, time.UTC),
		Ticks:               200,
		ClosedTrades:        5,
		RealizedPnL:         -20,
		FinalFunds:          249_980,
		MaxDrawdownAmount:   40,
		MaxDrawdownRate:     0.0008,
		MarginCalls:         1,
		MarginCallDetected:  true,
		MaxLevelHoldSeconds: []float64{0, 10, 90, 120},
	}

	a.Merge(b)

	assert.Equal(t, 300, a.Ticks)
	assert.Equal(t, 8, a.ClosedTrades)
	assert.InDelta(t, 30.0, a.RealizedPnL, 1e-9)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), a.Start)
	assert.Equal(t, time.Date(2025, 5, 2, 23, 0, 0, 0, time.UTC), a.End)
	assert.InDelta(t, 40.0, a.MaxDrawdownAmount, 1e-9, "worst day wins")
	assert.True(t, a.MarginCallDetected)
	assert.Equal(t, []float64{0, 30, 90, 120}, a.MaxLevelHoldSeconds)
}
