package backtest

import (
	"context"
	"log"
	"time"

	"github.com/fxreplay/nanpin-backtest/internal/indicators"
	"github.com/fxreplay/nanpin-backtest/internal/monitoring"
	"github.com/fxreplay/nanpin-backtest/internal/strategy"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
	"github.com/fxreplay/nanpin-backtest/pkg/types"
)

// ctxCheckInterval bounds how many ticks run between cancellation checks.
const ctxCheckInterval = 4096

// Engine replays a tick slice through the grid strategy with full capital
// accounting. One Engine performs one run; it is not reusable.
type Engine struct {
	params *config.Params

	// LogMode enables the hourly balance/drawdown log lines.
	LogMode bool
	// Debug enables trade-level logging inside the strategy.
	Debug bool
	// Metrics, when set, receives live run telemetry.
	Metrics *monitoring.Metrics
}

// NewEngine creates an engine for one run over the given parameters.
func NewEngine(p *config.Params) *Engine {
	return &Engine{params: p}
}

// Run replays the ticks in order and returns the accumulated result. Ticks
// must be sorted by time; the engine replays them exactly as given.
func (e *Engine) Run(ctx context.Context, ticks []types.Tick) (*RunResult, error) {
	p := e.params

	bars := indicators.NewBarAggregator(time.Minute)
	atr := indicators.NewATREngine(config.ATRPeriod)
	adx := indicators.NewADXEngine(config.ATRPeriod)
	grid := strategy.NewEngine(p)
	grid.Debug = e.Debug
	capital := NewCapitalManager(p)
	capital.LogMode = e.LogMode

	result := &RunResult{Symbol: p.Symbol}
	if len(ticks) > 0 {
		result.Start = ticks[0].Time
		result.End = ticks[len(ticks)-1].Time
	}

	var (
		lastClosedProfit float64
		lastBalance      = capital.Balance()
		lastEquity       = capital.Balance()
		peakEquity       = capital.Balance()
		hourPeakEquity   = capital.Balance()
		hourMinEquity    = capital.Balance()
		currentHour      time.Time
		over50Active     bool
		lastBid, lastAsk float64
	)

	for i, tick := range ticks {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		now, bid, ask := tick.Time, tick.Bid, tick.Ask
		tickHour := now.Truncate(time.Hour)

		if swept := capital.OnTickDate(now); swept > 0 {
			lastBalance = capital.Balance()
			lastEquity -= swept
			if lastEquity < 0 {
				lastEquity = 0
			}
		}

		if currentHour.IsZero() {
			currentHour = tickHour
			hourPeakEquity = lastEquity
			hourMinEquity = lastEquity
			e.logHour(currentHour, lastBalance, capital.Reserve(), 0, 0)
		} else if !tickHour.Equal(currentHour) {
			ddNow := hourPeakEquity - lastEquity
			ddMax := hourPeakEquity - hourMinEquity
			e.logHour(tickHour, lastBalance, capital.Reserve(), ddNow, ddMax)
			result.EquityCurve = append(result.EquityCurve, EquityPoint{
				Time:     currentHour,
				Balance:  lastBalance,
				Equity:   lastEquity,
				Reserve:  capital.Reserve(),
				Drawdown: ddNow,
			})
			currentHour = tickHour
			hourPeakEquity = lastEquity
			hourMinEquity = lastEquity
		}

		result.Ticks++
		e.Metrics.TickProcessed()

		if sealed := bars.Update(now, bid); sealed != nil {
			atr.OnBarSealed(*sealed)
			adx.OnBarSealed(*sealed)
		}
		current, haveBar := bars.Current()
		atrSnap := atr.Snapshot(current, haveBar)
		adxSnap := adx.Snapshot()

		grid.ProcessTick(tick, strategy.IndicatorSnapshot{
			ATRCurrent:  atrSnap.Current,
			ATRBase:     atrSnap.Base,
			ATRSlope:    atrSnap.Slope,
			ADX:         adxSnap.ADX,
			PlusDI:      adxSnap.PlusDI,
			MinusDI:     adxSnap.MinusDI,
			PrevADX:     adxSnap.PrevADX,
			PrevPlusDI:  adxSnap.PrevPlusDI,
			PrevMinusDI: adxSnap.PrevMinusDI,
		})

		if delta := grid.Stats().ClosedProfit - lastClosedProfit; abs(delta) > 1e-12 {
			capital.Credit(delta, now)
			lastClosedProfit = grid.Stats().ClosedProfit
		}

		unrealized := grid.UnrealizedPnL(bid, ask)
		equity := capital.Balance() + unrealized
		if equity > hourPeakEquity {
			hourPeakEquity = equity
		}
		if equity < hourMinEquity {
			hourMinEquity = equity
		}

		if equity > peakEquity {
			peakEquity = equity
		}
		globalDrawdown := peakEquity - equity
		if globalDrawdown > result.MaxDrawdownAmount {
			result.MaxDrawdownAmount = globalDrawdown
			if p.StartBalance > 0 {
				result.MaxDrawdownRate = globalDrawdown / p.StartBalance
			}
			result.MaxDrawdownTime = now
		}
		currentRate := 0.0
		if p.StartBalance > 0 {
			currentRate = globalDrawdown / p.StartBalance
		}
		if currentRate > 0.5 {
			if !over50Active {
				result.DrawdownOver50Count++
				over50Active = true
			}
		} else {
			over50Active = false
		}

		usedMargin := grid.UsedMargin(bid, ask)
		if usedMargin > result.MaxUsedMargin {
			result.MaxUsedMargin = usedMargin
		}
		e.Metrics.SetEquity(equity)

		if usedMargin > 0 && equity < usedMargin*config.MarginCallLevel {
			result.MarginCalls++
			result.MarginCallDetected = true
			e.Metrics.MarginCall()

			loss := capital.WipeBalance()
			grid.DebitRealized(loss)
			lastClosedProfit = grid.Stats().ClosedProfit
			grid.ResetAll()
			if e.LogMode {
				log.Printf("%s MARGIN_CALL loss=%.2f balance=0.00",
					now.Format(time.RFC3339), loss)
			}

			if p.StopOnMarginCall {
				result.StoppedEarly = true
				result.StopReason = "margin_call"
				lastBalance, lastEquity = 0, 0
				lastBid, lastAsk = bid, ask
				break
			}
			if !capital.Refund() {
				result.StoppedEarly = true
				result.StopReason = "reserve_exhausted"
				if e.LogMode {
					log.Printf("%s NO_FUNDS remaining=0.00 backtest_stop",
						now.Format(time.RFC3339))
				}
				lastBalance, lastEquity = 0, 0
				lastBid, lastAsk = bid, ask
				break
			}
			if e.LogMode {
				log.Printf("%s FUNDING +%.2f total_added=%.2f remaining_funds=%.2f",
					now.Format(time.RFC3339), p.StartBalance,
					capital.AddedFunds(), capital.Reserve())
			}

			currentHour = tickHour
			hourPeakEquity = capital.Balance()
			hourMinEquity = capital.Balance()
			equity = capital.Balance()
			if equity > peakEquity {
				peakEquity = equity
			}
		}

		lastBalance = capital.Balance()
		lastEquity = equity
		lastBid, lastAsk = bid, ask
	}

	stats := grid.Stats()
	result.OpenedTrades = stats.OpenedTrades
	result.ClosedTrades = stats.ClosedTrades
	result.OpenedLots = stats.OpenedLots
	result.RealizedPnL = stats.ClosedProfit
	result.OpenPositions = grid.OpenPositionCount()
	if result.OpenPositions > 0 {
		result.UnrealizedPnL = grid.UnrealizedPnL(lastBid, lastAsk)
	}

	result.Balance = capital.Balance()
	result.RemainingFunds = capital.Reserve()
	result.AddedFunds = capital.AddedFunds()
	result.FinalFunds = capital.FinalFunds()

	holds := grid.MaxLevelHold()
	result.MaxLevelHoldSeconds = make([]float64, len(holds))
	for i, d := range holds {
		result.MaxLevelHoldSeconds[i] = d.Seconds()
	}

	if !currentHour.IsZero() {
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Time:     currentHour,
			Balance:  lastBalance,
			Equity:   lastEquity,
			Reserve:  capital.Reserve(),
			Drawdown: hourPeakEquity - lastEquity,
		})
	}

	e.Metrics.RunCompleted()
	return result, nil
}

// logHour writes one hourly status line when logging is enabled.
func (e *Engine) logHour(hour time.Time, balance, reserve, ddNow, ddMax float64) {
	if !e.LogMode {
		return
	}
	log.Printf("%s balance=%.2f remaining_funds=%.2f dd_now=%.2f dd_max=%.2f",
		hour.Format(time.RFC3339), balance, reserve, ddNow, ddMax)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
