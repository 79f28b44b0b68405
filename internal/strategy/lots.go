package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

// Broker lot constraints for the instrument.
const (
	lotStepDecimals = 2
	minLot          = 0.01
	maxLot          = 100.0
)

// lotEpsilon keeps float artifacts like 0.5999999999 from flooring one step
// low; it must stay well below half a lot step.
var lotEpsilon = decimal.NewFromFloat(1e-7)

// NormalizeLot clamps a lot into [minLot, maxLot] and floors it to the lot
// step (0.01).
func NormalizeLot(lot float64) float64 {
	if lot < minLot {
		lot = minLot
	}
	if lot > maxLot {
		lot = maxLot
	}

	steps := decimal.NewFromFloat(lot).Add(lotEpsilon).Shift(lotStepDecimals).Floor()
	return steps.Shift(-lotStepDecimals).InexactFloat64()
}

// BuildLotSequence derives the per-level lot table: levels 1 and 2 equal the
// base lot, each later level is the sum of the previous two (capped Fibonacci
// growth), every term lot-stepped. Length equals the effective level count.
func BuildLotSequence(p *config.Params) []float64 {
	levels := p.EffectiveMaxLevels()
	seq := make([]float64, levels)
	seq[0] = p.BaseLot
	if levels > 1 {
		seq[1] = p.BaseLot
	}
	for i := 2; i < levels; i++ {
		seq[i] = seq[i-1] + seq[i-2]
	}
	for i := range seq {
		seq[i] = NormalizeLot(seq[i])
	}
	return seq
}

// NormalizeCoreFlexLot splits a level's lot into its core and flex parts by
// the configured ratio. Non-positive ratios fall back to 0.7/0.3; the flex
// part is lot-stepped independently and, when it rounds away entirely, the
// whole lot goes to core.
func NormalizeCoreFlexLot(p *config.Params, lot float64) (core, flex float64) {
	coreRatio := normalizeRatio(p.CoreRatio, 0.7)
	flexRatio := normalizeRatio(p.FlexRatio, 0.3)

	ratioSum := coreRatio + flexRatio
	if ratioSum <= 0 {
		coreRatio, flexRatio, ratioSum = 0.7, 0.3, 1.0
	}
	coreRatio /= ratioSum
	flexRatio /= ratioSum

	flex = NormalizeLot(lot * flexRatio)
	core = NormalizeLot(lot - flex)
	if flex <= 0 {
		flex = 0
		core = NormalizeLot(lot)
	}
	return core, flex
}

func normalizeRatio(value, fallback float64) float64 {
	if value > 0 {
		return value
	}
	return fallback
}
