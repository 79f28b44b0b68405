package indicators

import (
	"time"

	"github.com/fxreplay/nanpin-backtest/pkg/types"
)

// BarAggregator folds a tick stream into fixed-width OHLC bars. Both
// indicator engines are fed from one aggregator so they always see the same
// bar boundaries.
type BarAggregator struct {
	width   time.Duration
	current *types.Bar
}

// NewBarAggregator creates an aggregator with the given bar width
// (one minute for this strategy).
func NewBarAggregator(width time.Duration) *BarAggregator {
	if width <= 0 {
		width = time.Minute
	}
	return &BarAggregator{width: width}
}

// Update folds one tick into the aggregator. When the tick crosses a bar
// boundary the finished bar is returned and a new bar opens at the tick
// price; otherwise nil is returned and the open bar is extended.
func (a *BarAggregator) Update(ts time.Time, price float64) *types.Bar {
	start := ts.Truncate(a.width)

	if a.current == nil {
		a.current = newBar(start, price)
		return nil
	}

	if !a.current.Start.Equal(start) {
		sealed := *a.current
		a.current = newBar(start, price)
		return &sealed
	}

	if price > a.current.High {
		a.current.High = price
	}
	if price < a.current.Low {
		a.current.Low = price
	}
	a.current.Close = price
	return nil
}

// Current returns a copy of the in-progress bar. ok is false before the
// first tick.
func (a *BarAggregator) Current() (bar types.Bar, ok bool) {
	if a.current == nil {
		return types.Bar{}, false
	}
	return *a.current, true
}

func newBar(start time.Time, price float64) *types.Bar {
	return &types.Bar{
		Start: start,
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
}

// trueRange computes max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(bar types.Bar, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if hc := abs(bar.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := abs(bar.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
