package indicators

import "github.com/fxreplay/nanpin-backtest/pkg/types"

const (
	// atrBaseWindow / atrBaseOffset define the long "base" ATR: the mean of a
	// 50-value window of the ATR series, offset 5 bars back from the newest
	// value.
	atrBaseWindow = 50
	atrBaseOffset = 5
)

// ATRSnapshot is the volatility view handed to the strategy on every tick.
// All values are 0 during warm-up; callers treat 0 as "no signal".
type ATRSnapshot struct {
	// Current is the 14-bar mean true range with the in-progress bar's true
	// range folded in. Including the open bar is intentional: the strategy's
	// safety gating depends on reacting within the bar, not at its close.
	Current float64
	// Base is the mean of the ATR series over bars [n-55, n-5), available
	// once 55 ATR values exist.
	Base float64
	// Slope is ATR[-1] - ATR[-3] over the current-included ATR series.
	Slope float64
}

// ATREngine maintains rolling true-range state over sealed bars and derives
// the current/base/slope reads used by the grid strategy.
type ATREngine struct {
	period    int
	trValues  []float64
	atrValues []float64
	prevClose float64
	hasSealed bool
}

// NewATREngine creates an ATR engine with the given period (14 here).
func NewATREngine(period int) *ATREngine {
	return &ATREngine{period: period}
}

// OnBarSealed folds one finished bar into the rolling state. The ATR series
// records 0 until a full period of true ranges exists.
func (e *ATREngine) OnBarSealed(bar types.Bar) {
	prevClose := bar.Close
	if e.hasSealed {
		prevClose = e.prevClose
	}

	tr := trueRange(bar, prevClose)
	e.trValues = append(e.trValues, tr)

	atr := 0.0
	if len(e.trValues) >= e.period {
		sum := 0.0
		for _, v := range e.trValues[len(e.trValues)-e.period:] {
			sum += v
		}
		atr = sum / float64(e.period)
	}
	e.atrValues = append(e.atrValues, atr)

	e.prevClose = bar.Close
	e.hasSealed = true
}

// Snapshot computes the tick-level reads against the in-progress bar.
func (e *ATREngine) Snapshot(current types.Bar, haveBar bool) ATRSnapshot {
	if !haveBar {
		return ATRSnapshot{}
	}

	prevClose := current.Close
	if e.hasSealed {
		prevClose = e.prevClose
	}
	currentTR := trueRange(current, prevClose)

	atrCurrent := 0.0
	if len(e.trValues)+1 >= e.period {
		sum := currentTR
		for _, v := range e.trValues[len(e.trValues)-(e.period-1):] {
			sum += v
		}
		atrCurrent = sum / float64(e.period)
	}

	// Extended ATR series: sealed values plus the current read when defined.
	n := len(e.atrValues)
	total := n
	if atrCurrent > 0 {
		total++
	}
	at := func(i int) float64 {
		if i < n {
			return e.atrValues[i]
		}
		return atrCurrent
	}

	atrBase := 0.0
	if total >= atrBaseWindow+atrBaseOffset {
		sum := 0.0
		for i := total - (atrBaseWindow + atrBaseOffset); i < total-atrBaseOffset; i++ {
			sum += at(i)
		}
		atrBase = sum / float64(atrBaseWindow)
	}

	atrSlope := 0.0
	if total >= 3 {
		atrSlope = at(total-1) - at(total-3)
	}

	return ATRSnapshot{
		Current: atrCurrent,
		Base:    atrBase,
		Slope:   atrSlope,
	}
}

// SealedBars returns how many bars have been folded in so far.
func (e *ATREngine) SealedBars() int {
	return len(e.trValues)
}
