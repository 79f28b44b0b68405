package backtest

import "time"

// EquityPoint is one hourly sample of the equity curve.
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Balance  float64   `json:"balance"`
	Equity   float64   `json:"equity"`
	Reserve  float64   `json:"reserve"`
	Drawdown float64   `json:"drawdown"` // hourly peak minus equity at sample time
}

// RunResult is the complete outcome of one backtest run.
type RunResult struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	Ticks         int     `json:"ticks"`
	OpenedTrades  int     `json:"opened_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	OpenedLots    float64 `json:"opened_lots"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	OpenPositions int     `json:"open_positions"`

	Balance        float64 `json:"balance"`
	RemainingFunds float64 `json:"remaining_funds"`
	AddedFunds     float64 `json:"added_funds"`
	FinalFunds     float64 `json:"final_funds"`

	MaxDrawdownAmount   float64   `json:"max_drawdown_amount"`
	MaxDrawdownRate     float64   `json:"max_drawdown_rate"`
	MaxDrawdownTime     time.Time `json:"max_drawdown_time,omitzero"`
	DrawdownOver50Count int       `json:"drawdown_over_50_count"`
	MaxUsedMargin       float64   `json:"max_used_margin"`

	MarginCalls        int    `json:"margin_calls"`
	MarginCallDetected bool   `json:"margin_call_detected"`
	StoppedEarly       bool   `json:"stopped_early"`
	StopReason         string `json:"stop_reason,omitempty"`

	// MaxLevelHoldSeconds[level] is the longest a core position of that
	// level stayed open, in seconds; index 0 unused.
	MaxLevelHoldSeconds []float64 `json:"max_level_hold_seconds"`

	EquityCurve []EquityPoint `json:"equity_curve,omitempty"`
}

// NetProfit returns the run's profit over the configured total capital.
func (r *RunResult) NetProfit(totalCapital float64) float64 {
	return r.FinalFunds + r.UnrealizedPnL - totalCapital
}

// Merge folds another run's result into this one for multi-run aggregation.
// Counters and lot totals are summed; drawdown, used margin and hold
// durations take the worst case; balances are summed (each run owns its own
// capital).
func (r *RunResult) Merge(other *RunResult) {
	if other == nil {
		return
	}
	if r.Start.IsZero() || (!other.Start.IsZero() && other.Start.Before(r.Start)) {
		r.Start = other.Start
	}
	if other.End.After(r.End) {
		r.End = other.End
	}

	r.Ticks += other.Ticks
	r.OpenedTrades += other.OpenedTrades
	r.ClosedTrades += other.ClosedTrades
	r.OpenedLots += other.OpenedLots
	r.RealizedPnL += other.RealizedPnL
	r.UnrealizedPnL += other.UnrealizedPnL
	r.OpenPositions += other.OpenPositions

	r.Balance += other.Balance
	r.RemainingFunds += other.RemainingFunds
	r.AddedFunds += other.AddedFunds
	r.FinalFunds += other.FinalFunds

	if other.MaxDrawdownAmount > r.MaxDrawdownAmount {
		r.MaxDrawdownAmount = other.MaxDrawdownAmount
		r.MaxDrawdownRate = other.MaxDrawdownRate
		r.MaxDrawdownTime = other.MaxDrawdownTime
	}
	r.DrawdownOver50Count += other.DrawdownOver50Count
	if other.MaxUsedMargin > r.MaxUsedMargin {
		r.MaxUsedMargin = other.MaxUsedMargin
	}

	r.MarginCalls += other.MarginCalls
	r.MarginCallDetected = r.MarginCallDetected || other.MarginCallDetected
	r.StoppedEarly = r.StoppedEarly || other.StoppedEarly
	if r.StopReason == "" {
		r.StopReason = other.StopReason
	}

	if len(other.MaxLevelHoldSeconds) > len(r.MaxLevelHoldSeconds) {
		padded := make([]float64, len(other.MaxLevelHoldSeconds))
		copy(padded, r.MaxLevelHoldSeconds)
		r.MaxLevelHoldSeconds = padded
	}
	for i, v := range other.MaxLevelHoldSeconds {
		if v > r.MaxLevelHoldSeconds[i] {
			r.MaxLevelHoldSeconds[i] = v
		}
	}

	r.EquityCurve = append(r.EquityCurve, other.EquityCurve...)
}
