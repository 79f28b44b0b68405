package config

import "fmt"

// Strategy-wide constants that are not tunable per run.
const (
	// KMaxLevels is the hard cap on grid levels; the lot sequence, the
	// level-price tables and the flex-ref pool are all sized to it.
	KMaxLevels = 13

	// ATRPeriod is the rolling window used by both indicator engines.
	ATRPeriod = 14

	// MarginCallLevel is the equity/used-margin ratio below which a
	// margin call fires.
	MarginCallLevel = 0.9
)

// Fund management modes. Mode 0 performs no transfers.
const (
	FundModeOff        = 0 // keep all profit on the trading balance
	FundModeDailySweep = 1 // sweep balance above StartBalance at the first tick of a new day
	FundModeChunk50k   = 2 // move 50,000 chunks while balance > 100,000
	FundModeChunk10k   = 3 // move 10,000 chunks while balance > 60,000
)

// Params holds the full, immutable parameter set for one backtest run.
// Field names mirror the strategy's external parameter surface so override
// maps and config files use the same snake_case keys.
type Params struct {
	// Instrument
	Symbol       string  `json:"symbol" mapstructure:"symbol"`
	ContractSize float64 `json:"contract_size" mapstructure:"contract_size"`
	Leverage     float64 `json:"leverage" mapstructure:"leverage"`

	// Entry timing
	StartDelaySeconds   int `json:"start_delay_seconds" mapstructure:"start_delay_seconds"`
	RestartDelaySeconds int `json:"restart_delay_seconds" mapstructure:"restart_delay_seconds"`
	NanpinSleepSeconds  int `json:"nanpin_sleep_seconds" mapstructure:"nanpin_sleep_seconds"`

	// Grid spacing
	ATRMultiplier float64 `json:"atr_multiplier" mapstructure:"atr_multiplier"`
	MinATR        float64 `json:"min_atr" mapstructure:"min_atr"`

	// Volatility safety gate
	SafetyMode   bool    `json:"safety_mode" mapstructure:"safety_mode"`
	SafeStopMode bool    `json:"safe_stop_mode" mapstructure:"safe_stop_mode"`
	SafeK        float64 `json:"safe_k" mapstructure:"safe_k"`
	SafeSlopeK   float64 `json:"safe_slope_k" mapstructure:"safe_slope_k"`

	// Trend (ADX/DMI) gates
	ADXMaxForEntry  float64 `json:"adx_max_for_entry" mapstructure:"adx_max_for_entry"`
	ADXMaxForNanpin float64 `json:"adx_max_for_nanpin" mapstructure:"adx_max_for_nanpin"`
	DIGapMin        float64 `json:"di_gap_min" mapstructure:"di_gap_min"`

	// Lot sizing
	BaseLot   float64 `json:"base_lot" mapstructure:"base_lot"`
	MaxLevels int     `json:"max_levels" mapstructure:"max_levels"`

	// Profit targets
	ProfitBase          float64 `json:"profit_base" mapstructure:"profit_base"`
	ProfitBaseLevelMode bool    `json:"profit_base_level_mode" mapstructure:"profit_base_level_mode"`
	ProfitBaseLevelStep float64 `json:"profit_base_level_step" mapstructure:"profit_base_level_step"`
	ProfitBaseLevelMin  float64 `json:"profit_base_level_min" mapstructure:"profit_base_level_min"`

	// Core/flex split
	CoreRatio               float64 `json:"core_ratio" mapstructure:"core_ratio"`
	FlexRatio               float64 `json:"flex_ratio" mapstructure:"flex_ratio"`
	CoreFlexSplitLevel      int     `json:"core_flex_split_level" mapstructure:"core_flex_split_level"`
	FlexATRProfitMultiplier float64 `json:"flex_atr_profit_multiplier" mapstructure:"flex_atr_profit_multiplier"`

	// Capital management
	TotalCapital     float64 `json:"total_capital" mapstructure:"total_capital"`
	StartBalance     float64 `json:"start_balance" mapstructure:"start_balance"`
	FundMode         int     `json:"fund_mode" mapstructure:"fund_mode"`
	StopOnMarginCall bool    `json:"stop_on_margin_call" mapstructure:"stop_on_margin_call"`
}

// DefaultParams returns the parameter set the strategy ships with
// (XAUUSD tick data, 1:100 leverage futures account).
func DefaultParams() *Params {
	return &Params{
		Symbol:       "XAUUSD",
		ContractSize: 100.0,
		Leverage:     100.0,

		StartDelaySeconds:   5,
		RestartDelaySeconds: 1,
		NanpinSleepSeconds:  10,

		ATRMultiplier: 1.4,
		MinATR:        1.6,

		SafetyMode:   true,
		SafeStopMode: false,
		SafeK:        2.0,
		SafeSlopeK:   0.3,

		ADXMaxForEntry:  40.0,
		ADXMaxForNanpin: 30.0,
		DIGapMin:        10.0,

		BaseLot:   0.2,
		MaxLevels: 12,

		ProfitBase:          1.0,
		ProfitBaseLevelMode: false,
		ProfitBaseLevelStep: 0.0,
		ProfitBaseLevelMin:  0.0,

		CoreRatio:               0.7,
		FlexRatio:               0.3,
		CoreFlexSplitLevel:      3,
		FlexATRProfitMultiplier: 0.8,

		TotalCapital:     250000.0,
		StartBalance:     50000.0,
		FundMode:         FundModeOff,
		StopOnMarginCall: false,
	}
}

// EffectiveMaxLevels clamps the configured level count into [1, KMaxLevels].
func (p *Params) EffectiveMaxLevels() int {
	levels := p.MaxLevels
	if levels < 1 {
		levels = 1
	}
	if levels > KMaxLevels {
		levels = KMaxLevels
	}
	return levels
}

// Validate performs comprehensive validation of the parameter set.
func (p *Params) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if p.ContractSize <= 0 {
		return fmt.Errorf("contract_size must be positive, got: %f", p.ContractSize)
	}

	if p.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got: %f", p.Leverage)
	}

	if p.BaseLot <= 0 {
		return fmt.Errorf("base_lot must be positive, got: %f", p.BaseLot)
	}

	if p.ATRMultiplier <= 0 {
		return fmt.Errorf("atr_multiplier must be positive, got: %f", p.ATRMultiplier)
	}

	if p.MinATR < 0 {
		return fmt.Errorf("min_atr must not be negative, got: %f", p.MinATR)
	}

	if p.ProfitBase <= 0 {
		return fmt.Errorf("profit_base must be positive, got: %f", p.ProfitBase)
	}

	if p.ProfitBaseLevelMode {
		if p.ProfitBaseLevelStep < 0 {
			return fmt.Errorf("profit_base_level_step must not be negative, got: %f", p.ProfitBaseLevelStep)
		}
		if p.ProfitBaseLevelMin < 0 {
			return fmt.Errorf("profit_base_level_min must not be negative, got: %f", p.ProfitBaseLevelMin)
		}
	}

	if p.CoreFlexSplitLevel < 1 {
		return fmt.Errorf("core_flex_split_level must be >= 1, got: %d", p.CoreFlexSplitLevel)
	}

	if p.CoreRatio < 0 || p.FlexRatio < 0 {
		return fmt.Errorf("core_ratio and flex_ratio must not be negative, got: %f/%f", p.CoreRatio, p.FlexRatio)
	}

	if p.FlexATRProfitMultiplier < 0 {
		return fmt.Errorf("flex_atr_profit_multiplier must not be negative, got: %f", p.FlexATRProfitMultiplier)
	}

	if p.StartDelaySeconds < 0 || p.RestartDelaySeconds < 0 || p.NanpinSleepSeconds < 0 {
		return fmt.Errorf("timing delays must not be negative")
	}

	if p.TotalCapital <= 0 {
		return fmt.Errorf("total_capital must be positive, got: %f", p.TotalCapital)
	}

	if p.StartBalance <= 0 {
		return fmt.Errorf("start_balance must be positive, got: %f", p.StartBalance)
	}

	if p.StartBalance > p.TotalCapital {
		return fmt.Errorf("start_balance (%f) must not exceed total_capital (%f)", p.StartBalance, p.TotalCapital)
	}

	switch p.FundMode {
	case FundModeOff, FundModeDailySweep, FundModeChunk50k, FundModeChunk10k:
		// valid
	default:
		return fmt.Errorf("fund_mode must be 0..3, got: %d", p.FundMode)
	}

	return nil
}

// Clone returns a deep copy; runs mutate nothing but the optimizer reuses a
// base parameter set across trials.
func (p *Params) Clone() *Params {
	cp := *p
	return &cp
}
