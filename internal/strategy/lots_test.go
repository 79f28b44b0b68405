package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

func TestNormalizeLot(t *testing.T) {
	assert.InDelta(t, 0.20, NormalizeLot(0.2), 1e-12)
	assert.InDelta(t, 0.25, NormalizeLot(0.256), 1e-12)
	assert.InDelta(t, 0.01, NormalizeLot(0.004), 1e-12, "below minimum clamps up")
	assert.InDelta(t, 100.0, NormalizeLot(150.0), 1e-12, "above maximum clamps down")
}

func TestNormalizeLotFloatArtifacts(t *testing.T) {
	// 0.5999999999 is 0.6 with float noise; it must not floor to 0.59.
	assert.InDelta(t, 0.60, NormalizeLot(0.5999999999), 1e-12)
	assert.InDelta(t, 0.30, NormalizeLot(0.1+0.2), 1e-12)
}

func TestBuildLotSequence(t *testing.T) {
	p := config.DefaultParams() // base lot 0.2, 12 levels

	seq := BuildLotSequence(p)

	expected := []float64{0.2, 0.2, 0.4, 0.6, 1.0, 1.6, 2.6, 4.2, 6.8, 11.0, 17.8, 28.8}
	assert.Len(t, seq, len(expected))
	for i, want := range expected {
		assert.InDelta(t, want, seq[i], 1e-9, "level %d", i+1)
	}
}

func TestBuildLotSequenceSingleLevel(t *testing.T) {
	p := config.DefaultParams()
	p.MaxLevels = 1

	seq := BuildLotSequence(p)

	assert.Len(t, seq, 1)
	assert.InDelta(t, 0.2, seq[0], 1e-9)
}

func TestNormalizeCoreFlexLot(t *testing.T) {
	p := config.DefaultParams() // 0.7 / 0.3 split

	core, flex := NormalizeCoreFlexLot(p, 1.0)
	assert.InDelta(t, 0.70, core, 1e-9)
	assert.InDelta(t, 0.30, flex, 1e-9)

	core, flex = NormalizeCoreFlexLot(p, 0.4)
	assert.InDelta(t, 0.28, core, 1e-9)
	assert.InDelta(t, 0.12, flex, 1e-9)
}

func TestNormalizeCoreFlexLotFallbackRatios(t *testing.T) {
	p := config.DefaultParams()
	p.CoreRatio = 0
	p.FlexRatio = -1

	core, flex := NormalizeCoreFlexLot(p, 1.0)

	assert.InDelta(t, 0.70, core, 1e-9)
	assert.InDelta(t, 0.30, flex, 1e-9)
}

func TestNormalizeCoreFlexLotRenormalizesRatios(t *testing.T) {
	p := config.DefaultParams()
	p.CoreRatio = 1.4
	p.FlexRatio = 0.6

	core, flex := NormalizeCoreFlexLot(p, 1.0)

	assert.InDelta(t, 0.70, core, 1e-9)
	assert.InDelta(t, 0.30, flex, 1e-9)
}
