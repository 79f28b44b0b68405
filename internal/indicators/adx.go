package indicators

import "github.com/fxreplay/nanpin-backtest/pkg/types"

// ADXSnapshot is the trend view handed to the strategy on every tick.
// Prev* hold the values as of the previous sealed bar; they are seeded equal
// to the current values the first time ADX becomes non-zero, so slope-style
// comparisons are well defined from the first usable bar.
type ADXSnapshot struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64

	PrevADX     float64
	PrevPlusDI  float64
	PrevMinusDI float64
}

// ADXEngine maintains Wilder-smoothed directional-movement state over sealed
// bars. The first period of TR/+DM/-DM values is summed directly to seed the
// smoothed accumulators; the first ADX is the simple mean of the first
// period DX values and is Wilder-smoothed thereafter.
type ADXEngine struct {
	period int

	prevHigh  float64
	prevLow   float64
	prevClose float64
	hasPrev   bool

	seedCount  int
	trSum      float64
	plusDMSum  float64
	minusDMSum float64

	dxValues []float64
	adxSum   float64

	adx     float64
	plusDI  float64
	minusDI float64

	prevADX     float64
	prevPlusDI  float64
	prevMinusDI float64
	prevSeeded  bool
}

// NewADXEngine creates an ADX engine with the given period (14 here).
func NewADXEngine(period int) *ADXEngine {
	return &ADXEngine{period: period}
}

// OnBarSealed folds one finished bar into the directional-movement state.
func (e *ADXEngine) OnBarSealed(bar types.Bar) {
	if !e.hasPrev {
		e.rememberBar(bar)
		e.hasPrev = true
		return
	}

	tr := trueRange(bar, e.prevClose)

	plusDM := 0.0
	minusDM := 0.0
	highDiff := bar.High - e.prevHigh
	lowDiff := e.prevLow - bar.Low
	if highDiff > lowDiff && highDiff > 0 {
		plusDM = highDiff
	}
	if lowDiff > highDiff && lowDiff > 0 {
		minusDM = lowDiff
	}

	if e.seedCount < e.period {
		e.trSum += tr
		e.plusDMSum += plusDM
		e.minusDMSum += minusDM
		e.seedCount++
	} else {
		e.trSum = e.trSum - e.trSum/float64(e.period) + tr
		e.plusDMSum = e.plusDMSum - e.plusDMSum/float64(e.period) + plusDM
		e.minusDMSum = e.minusDMSum - e.minusDMSum/float64(e.period) + minusDM
	}

	if e.seedCount >= e.period && e.trSum > 0 {
		e.updateDirectional()
	}

	e.rememberBar(bar)
}

// updateDirectional recomputes DI/DX/ADX after the smoothed sums changed.
func (e *ADXEngine) updateDirectional() {
	oldADX, oldPlus, oldMinus := e.adx, e.plusDI, e.minusDI

	newPlusDI := 100 * e.plusDMSum / e.trSum
	newMinusDI := 100 * e.minusDMSum / e.trSum

	dx := 0.0
	if diSum := newPlusDI + newMinusDI; diSum != 0 {
		dx = 100 * abs(newPlusDI-newMinusDI) / diSum
	}
	e.dxValues = append(e.dxValues, dx)

	newADX := e.adx
	if len(e.dxValues) == e.period {
		sum := 0.0
		for _, v := range e.dxValues {
			sum += v
		}
		newADX = sum / float64(e.period)
		e.adxSum = newADX * float64(e.period)
	} else if len(e.dxValues) > e.period {
		e.adxSum = e.adxSum - e.adxSum/float64(e.period) + dx
		newADX = e.adxSum / float64(e.period)
	}

	e.plusDI = newPlusDI
	e.minusDI = newMinusDI
	e.adx = newADX

	if !e.prevSeeded {
		if newADX != 0 {
			e.prevADX = newADX
			e.prevPlusDI = newPlusDI
			e.prevMinusDI = newMinusDI
			e.prevSeeded = true
		}
	} else {
		e.prevADX = oldADX
		e.prevPlusDI = oldPlus
		e.prevMinusDI = oldMinus
	}
}

func (e *ADXEngine) rememberBar(bar types.Bar) {
	e.prevHigh = bar.High
	e.prevLow = bar.Low
	e.prevClose = bar.Close
}

// Snapshot returns the current trend view. All zeros during warm-up.
func (e *ADXEngine) Snapshot() ADXSnapshot {
	return ADXSnapshot{
		ADX:         e.adx,
		PlusDI:      e.plusDI,
		MinusDI:     e.minusDI,
		PrevADX:     e.prevADX,
		PrevPlusDI:  e.prevPlusDI,
		PrevMinusDI: e.prevMinusDI,
	}
}

// DXHistory exposes the raw DX series, mainly for verification.
func (e *ADXEngine) DXHistory() []float64 {
	out := make([]float64, len(e.dxValues))
	copy(out, e.dxValues)
	return out
}
