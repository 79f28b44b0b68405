package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty symbol", func(p *Params) { p.Symbol = "" }},
		{"zero contract", func(p *Params) { p.ContractSize = 0 }},
		{"zero leverage", func(p *Params) { p.Leverage = 0 }},
		{"zero base lot", func(p *Params) { p.BaseLot = 0 }},
		{"zero atr multiplier", func(p *Params) { p.ATRMultiplier = 0 }},
		{"negative min atr", func(p *Params) { p.MinATR = -1 }},
		{"zero profit base", func(p *Params) { p.ProfitBase = 0 }},
		{"split level zero", func(p *Params) { p.CoreFlexSplitLevel = 0 }},
		{"negative core ratio", func(p *Params) { p.CoreRatio = -0.1 }},
		{"negative flex profit multiplier", func(p *Params) { p.FlexATRProfitMultiplier = -1 }},
		{"negative delay", func(p *Params) { p.StartDelaySeconds = -1 }},
		{"start above total", func(p *Params) { p.StartBalance = p.TotalCapital + 1 }},
		{"bad fund mode", func(p *Params) { p.FundMode = 9 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestEffectiveMaxLevelsClamps(t *testing.T) {
	p := DefaultParams()

	p.MaxLevels = 0
	assert.Equal(t, 1, p.EffectiveMaxLevels())

	p.MaxLevels = 50
	assert.Equal(t, KMaxLevels, p.EffectiveMaxLevels())

	p.MaxLevels = 8
	assert.Equal(t, 8, p.EffectiveMaxLevels())
}

func TestApplyOverrides(t *testing.T) {
	p := DefaultParams()

	err := p.ApplyOverrides(map[string]interface{}{
		"base_lot":    "0.35",
		"fund_mode":   "2",
		"safety_mode": "false",
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.35, p.BaseLot, 1e-9)
	assert.Equal(t, FundModeChunk50k, p.FundMode)
	assert.False(t, p.SafetyMode)
}

func TestApplyOverridesRejectsUnknownKey(t *testing.T) {
	p := DefaultParams()

	err := p.ApplyOverrides(map[string]interface{}{"base_lots": 0.3})

	require.Error(t, err, "a misspelled key must fail, not silently default")
	assert.Contains(t, err.Error(), "invalid parameter override")
}

func TestParseOverrideArgs(t *testing.T) {
	overrides, err := ParseOverrideArgs([]string{"base_lot=0.3", "fund_mode=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"base_lot": "0.3", "fund_mode": "1"}, overrides)

	_, err = ParseOverrideArgs([]string{"no-equals"})
	assert.Error(t, err)

	empty, err := ParseOverrideArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	content := []byte("base_lot: 0.5\nmax_levels: 10\nsymbol: XAUUSD\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	p, err := LoadFile(path)

	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.BaseLot, 1e-9)
	assert.Equal(t, 10, p.MaxLevels)
	// Untouched fields keep their defaults.
	assert.InDelta(t, 1.4, p.ATRMultiplier, 1e-9)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	p := DefaultParams()
	clone := p.Clone()
	clone.BaseLot = 0.9

	assert.InDelta(t, 0.2, p.BaseLot, 1e-9)
}
