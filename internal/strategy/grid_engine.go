package strategy

import (
	"log"
	"time"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
	"github.com/fxreplay/nanpin-backtest/pkg/types"
)

// IndicatorSnapshot carries the already-updated indicator reads for the
// current tick. The engine never touches the indicator state itself; callers
// must update the engines first and pass the result in, so gating can never
// observe a stale bar.
type IndicatorSnapshot struct {
	ATRCurrent float64
	ATRBase    float64
	ATRSlope   float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	PrevADX     float64
	PrevPlusDI  float64
	PrevMinusDI float64
}

// Stats accumulates trade-level statistics over a run.
type Stats struct {
	ClosedProfit float64
	ClosedTrades int
	OpenedTrades int
	OpenedLots   float64
}

// Engine is the per-symbol grid/nanpin state machine. It operates on both
// position baskets (buy and sell) tick by tick, strictly sequentially.
type Engine struct {
	params *config.Params
	state  *SymbolState

	positions []Position
	stats     Stats

	// maxLevelHold[level] is the longest a core position of that level
	// stayed open; index 0 unused.
	maxLevelHold []time.Duration

	// Debug enables trade-level logging through the standard logger.
	Debug bool
}

// NewEngine creates a fresh engine for one run.
func NewEngine(p *config.Params) *Engine {
	return &Engine{
		params:       p,
		state:        newSymbolState(p),
		maxLevelHold: make([]time.Duration, config.KMaxLevels+1),
	}
}

// ProcessTick advances the state machine by one tick. The indicator snapshot
// must already reflect this tick.
func (e *Engine) ProcessTick(tick types.Tick, ind IndicatorSnapshot) {
	p := e.params
	now, bid, ask := tick.Time, tick.Bid, tick.Ask

	buy, sell := e.collectBasketInfo(bid, ask)

	// Closure detection: a side that held positions last tick and is empty
	// now just finished a full close; wipe its transient state.
	if e.state.buy.prevCount > 0 && buy.Count == 0 {
		e.state.buy.resetAfterClose(now)
	}
	if e.state.sell.prevCount > 0 && sell.Count == 0 {
		e.state.sell.resetAfterClose(now)
	}

	if buy.Count > 0 || sell.Count > 0 {
		e.syncLevelPrices()
	}

	// Initial entry: both sides open level 1 simultaneously once the start
	// delay has elapsed, each side subject to the ADX entry filter. The tick
	// ends after an attempt.
	if !e.state.initialStarted {
		if !e.state.started {
			e.state.startTime = now
			e.state.started = true
		}
		if now.Sub(e.state.startTime) >= time.Duration(p.StartDelaySeconds)*time.Second &&
			buy.Count == 0 && sell.Count == 0 {
			if !e.entryBlocked(SideBuy, ind) {
				e.openPosition(SideBuy, e.state.lotSeq[0], ask, KindCore, 1, now)
			}
			if !e.entryBlocked(SideSell, ind) {
				e.openPosition(SideSell, e.state.lotSeq[0], bid, KindCore, 1, now)
			}
			if len(e.positions) > 0 {
				e.state.initialStarted = true
			}
			e.state.buy.prevCount = buy.Count
			e.state.sell.prevCount = sell.Count
			return
		}
	}

	// Grid step: ATR-scaled with a floor; each basket's stored step only
	// ever grows within one basket lifetime.
	gridStep := 0.0
	atrRef := ind.ATRBase
	if p.MinATR > atrRef {
		atrRef = p.MinATR
	}
	if atrRef > 0 {
		gridStep = atrRef * p.ATRMultiplier
	}
	if buy.Count > 0 && gridStep > e.state.buy.gridStep {
		e.state.buy.gridStep = gridStep
	}
	if sell.Count > 0 && gridStep > e.state.sell.gridStep {
		e.state.sell.gridStep = gridStep
	}

	// Volatility safety gate (global, both sides).
	allowNanpin := true
	safetyTriggered := false
	if p.SafetyMode && ind.ATRBase > 0 {
		if ind.ATRCurrent >= ind.ATRBase*p.SafeK {
			safetyTriggered = true
			if !p.SafeStopMode {
				allowNanpin = false
			}
		}
		if ind.ATRSlope > ind.ATRBase*p.SafeSlopeK {
			safetyTriggered = true
			if !p.SafeStopMode {
				allowNanpin = false
			}
		}
	}
	if p.SafetyMode {
		e.state.safetyActive = safetyTriggered || !allowNanpin
	}

	if p.SafeStopMode && safetyTriggered {
		if buy.Count > 0 {
			e.closeSide(SideBuy, bid, ask, now)
		}
		if sell.Count > 0 {
			e.closeSide(SideSell, bid, ask, now)
		}
		e.state.buy.prevCount = buy.Count
		e.state.sell.prevCount = sell.Count
		return
	}

	// Trend nanpin-stop, evaluated per side while nanpin is otherwise
	// allowed.
	if allowNanpin {
		e.state.buy.trendStop = e.nanpinStopped(SideBuy, ind)
		e.state.sell.trendStop = e.nanpinStopped(SideSell, ind)
	}

	e.processFlexPartial(bid, ask, ind.ATRCurrent, now)

	// Full-basket take-profit. Decisions use the step-1 snapshot: floating
	// profit as of tick start, realized partial profit as of now.
	if buy.Count > 0 {
		pb := e.effectiveProfitBase(buy.LevelCount)
		if e.state.buy.hasPartial {
			target := buy.Volume * pb * 0.5 * p.ContractSize
			if buy.Profit+e.state.buy.realizedPartial >= target {
				e.closeSide(SideBuy, bid, ask, now)
			}
		} else if bid >= buy.AvgPrice+pb {
			e.closeSide(SideBuy, bid, ask, now)
		}
	}
	if sell.Count > 0 {
		pb := e.effectiveProfitBase(sell.LevelCount)
		if e.state.sell.hasPartial {
			target := sell.Volume * pb * 0.5 * p.ContractSize
			if sell.Profit+e.state.sell.realizedPartial >= target {
				e.closeSide(SideSell, bid, ask, now)
			}
		} else if ask <= sell.AvgPrice-pb {
			e.closeSide(SideSell, bid, ask, now)
		}
	}

	// Restart after close, behind the restart delay and the entry filter.
	if e.state.initialStarted {
		if buy.Count == 0 && canActAfter(e.state.buy.lastCloseTime, now, p.RestartDelaySeconds) &&
			!e.entryBlocked(SideBuy, ind) {
			e.openPosition(SideBuy, e.state.lotSeq[0], ask, KindCore, 1, now)
		}
		if sell.Count == 0 && canActAfter(e.state.sell.lastCloseTime, now, p.RestartDelaySeconds) &&
			!e.entryBlocked(SideSell, ind) {
			e.openPosition(SideSell, e.state.lotSeq[0], bid, KindCore, 1, now)
		}
	}

	levels := p.EffectiveMaxLevels()
	tol := InferPoint(bid) * 0.5

	e.trackSkippedLevels(SideBuy, buy, ask, levels)
	e.trackSkippedLevels(SideSell, sell, bid, levels)

	e.tryNanpin(SideBuy, buy, bid, ask, gridStep, allowNanpin, levels, tol, now)
	e.tryNanpin(SideSell, sell, bid, ask, gridStep, allowNanpin, levels, tol, now)

	if allowNanpin {
		if buy.Count > 0 {
			e.processFlexRefill(SideBuy, ask, now)
		}
		if sell.Count > 0 {
			e.processFlexRefill(SideSell, bid, now)
		}
	}

	e.state.buy.prevCount = buy.Count
	e.state.sell.prevCount = sell.Count
}

// collectBasketInfo projects the live positions into per-side summaries at
// the current quote.
func (e *Engine) collectBasketInfo(bid, ask float64) (buy, sell BasketInfo) {
	var buyValue, sellValue float64
	for _, pos := range e.positions {
		if pos.Side == SideBuy {
			if buy.Count == 0 {
				buy.MinPrice = pos.Price
				buy.MaxPrice = pos.Price
			} else {
				if pos.Price < buy.MinPrice {
					buy.MinPrice = pos.Price
				}
				if pos.Price > buy.MaxPrice {
					buy.MaxPrice = pos.Price
				}
			}
			buy.Count++
			if pos.Kind != KindFlex {
				buy.LevelCount++
			}
			buy.Volume += pos.Volume
			buyValue += pos.Volume * pos.Price
			buy.Profit += (bid - pos.Price) * pos.Volume * e.params.ContractSize
		} else {
			if sell.Count == 0 {
				sell.MinPrice = pos.Price
				sell.MaxPrice = pos.Price
			} else {
				if pos.Price < sell.MinPrice {
					sell.MinPrice = pos.Price
				}
				if pos.Price > sell.MaxPrice {
					sell.MaxPrice = pos.Price
				}
			}
			sell.Count++
			if pos.Kind != KindFlex {
				sell.LevelCount++
			}
			sell.Volume += pos.Volume
			sellValue += pos.Volume * pos.Price
			sell.Profit += (pos.Price - ask) * pos.Volume * e.params.ContractSize
		}
	}
	if buy.Volume > 0 {
		buy.AvgPrice = buyValue / buy.Volume
	}
	if sell.Volume > 0 {
		sell.AvgPrice = sellValue / sell.Volume
	}
	return buy, sell
}

// syncLevelPrices re-records any core position's price into the level-price
// table and re-infers the grid step from the first two levels when unset.
// This keeps the tables consistent after resets.
func (e *Engine) syncLevelPrices() {
	for _, pos := range e.positions {
		if pos.Kind == KindFlex {
			continue
		}
		if pos.Level <= 0 || pos.Level > config.KMaxLevels {
			continue
		}
		st := e.state.side(pos.Side)
		if st.levelPrice[pos.Level-1] <= 0 {
			st.levelPrice[pos.Level-1] = pos.Price
		}
	}
	for _, st := range []*sideState{&e.state.buy, &e.state.sell} {
		if st.gridStep <= 0 && st.levelPrice[0] > 0 && st.levelPrice[1] > 0 {
			st.gridStep = abs(st.levelPrice[0] - st.levelPrice[1])
		}
	}
}

// entryBlocked reports whether the ADX entry filter forbids opening the
// side: a strong trend with the opposing DI clearly leading.
func (e *Engine) entryBlocked(side Side, ind IndicatorSnapshot) bool {
	if ind.ADX < e.params.ADXMaxForEntry {
		return false
	}
	gap := ind.MinusDI - ind.PlusDI
	if side == SideSell {
		gap = ind.PlusDI - ind.MinusDI
	}
	return gap >= e.params.DIGapMin
}

// nanpinStopped reports whether further adds on the side are halted: trend
// strength above the nanpin cap, the adverse DI clearly leading, and the
// pressure not already easing (gap shrinking while ADX falls).
func (e *Engine) nanpinStopped(side Side, ind IndicatorSnapshot) bool {
	if ind.ADX < e.params.ADXMaxForNanpin {
		return false
	}

	gap := ind.MinusDI - ind.PlusDI
	prevGap := ind.PrevMinusDI - ind.PrevPlusDI
	if side == SideSell {
		gap = ind.PlusDI - ind.MinusDI
		prevGap = ind.PrevPlusDI - ind.PrevMinusDI
	}

	if gap < e.params.DIGapMin {
		return false
	}
	if gap < prevGap && ind.ADX < ind.PrevADX {
		return false
	}
	return true
}

// effectiveProfitBase applies the optional level decay to the profit target
// distance.
func (e *Engine) effectiveProfitBase(levelCount int) float64 {
	pb := e.params.ProfitBase
	if e.params.ProfitBaseLevelMode && levelCount > 1 {
		pb -= e.params.ProfitBaseLevelStep * float64(levelCount-1)
		if pb < e.params.ProfitBaseLevelMin {
			pb = e.params.ProfitBaseLevelMin
		}
	}
	return pb
}

// processFlexPartial closes flex positions whose floating price-profit has
// reached the ATR-scaled target, banking the profit and registering a reopen
// slot in the flex-ref pool.
func (e *Engine) processFlexPartial(bid, ask, atrNow float64, now time.Time) {
	p := e.params
	if atrNow <= 0 || p.FlexATRProfitMultiplier <= 0 {
		return
	}
	target := atrNow * p.FlexATRProfitMultiplier

	kept := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		if pos.Kind != KindFlex {
			kept = append(kept, pos)
			continue
		}
		profit := bid - pos.Price
		if pos.Side == SideSell {
			profit = pos.Price - ask
		}
		if profit < target {
			kept = append(kept, pos)
			continue
		}

		realized := profit * pos.Volume * p.ContractSize
		e.stats.ClosedProfit += realized
		e.stats.ClosedTrades++
		if e.Debug {
			log.Printf("%s FLEX_TP %s lot=%.2f profit=%.2f level=%d",
				now.Format(time.RFC3339), pos.Side, pos.Volume, realized, pos.Level)
		}

		st := e.state.side(pos.Side)
		st.realizedPartial += realized
		st.hasPartial = true
		addFlexRef(st.flexRefs, pos.Price, pos.Volume, pos.Level)
	}
	e.positions = kept
}

// processFlexRefill reopens flex positions whose trigger price has retraced
// back to a recorded reopen slot.
func (e *Engine) processFlexRefill(side Side, trigger float64, now time.Time) {
	tol := InferPoint(trigger) * 0.5
	st := e.state.side(side)
	for i := range st.flexRefs {
		ref := &st.flexRefs[i]
		if !ref.Active {
			continue
		}
		reached := trigger <= ref.Price+tol
		if side == SideSell {
			reached = trigger >= ref.Price-tol
		}
		if !reached {
			continue
		}
		e.openPosition(side, ref.Lot, trigger, KindFlex, ref.Level, now)
		ref.Active = false
	}
}

// trackSkippedLevels advances the skip bookkeeping while a side's trend stop
// is active: each full grid step of adverse movement beyond the next pending
// level target pre-registers that target and bumps the skip counter, so the
// engine resumes from the skipped-ahead level once the filter releases.
func (e *Engine) trackSkippedLevels(side Side, info BasketInfo, trigger float64, levels int) {
	st := e.state.side(side)
	if !st.trendStop || info.Count == 0 {
		return
	}
	step := st.gridStep
	if step <= 0 {
		return
	}

	for {
		nextIdx := info.LevelCount + st.skipCount
		if nextIdx >= levels {
			return
		}
		target := e.levelTarget(side, st, info, nextIdx, step)
		passed := trigger <= target-step
		if side == SideSell {
			passed = trigger >= target+step
		}
		if !passed {
			return
		}
		st.skipCount++
		st.skipRef = target
		st.skipStep = step
	}
}

// levelTarget returns the entry target of the level at nextIdx, deriving and
// recording it from the previous level (or the basket extreme) when unset.
func (e *Engine) levelTarget(side Side, st *sideState, info BasketInfo, nextIdx int, step float64) float64 {
	target := st.levelPrice[nextIdx]
	if target > 0 {
		return target
	}

	base := 0.0
	if nextIdx > 0 {
		base = st.levelPrice[nextIdx-1]
	}
	if base <= 0 {
		if side == SideBuy {
			base = info.MinPrice
		} else {
			base = info.MaxPrice
		}
	}
	if side == SideBuy {
		target = base - step
	} else {
		target = base + step
	}
	st.levelPrice[nextIdx] = target
	return target
}

// tryNanpin opens the next scale-in level when price has reached its target.
// At and past the core/flex split level the lot is divided into a core and a
// flex position.
func (e *Engine) tryNanpin(side Side, info BasketInfo, bid, ask, gridStep float64, allowNanpin bool, levels int, tol float64, now time.Time) {
	p := e.params
	st := e.state.side(side)

	if info.Count == 0 {
		return
	}
	nextIdx := info.LevelCount + st.skipCount
	if nextIdx >= levels {
		return
	}

	step := st.gridStep
	if step <= 0 {
		step = gridStep
	}
	if step <= 0 {
		return
	}

	// The target is derived and recorded even while adds are disallowed, so
	// a later release resumes against a stable level table.
	target := e.levelTarget(side, st, info, nextIdx, step)

	if !allowNanpin || st.trendStop {
		return
	}
	if !canActAfter(st.lastNanpinTime, now, p.NanpinSleepSeconds) {
		return
	}

	reached := ask <= target+tol
	price := ask
	if side == SideSell {
		reached = bid >= target-tol
		price = bid
	}
	if !reached {
		return
	}

	lot := e.state.lotSeq[nextIdx]
	nextLevel := nextIdx + 1
	if nextLevel >= p.CoreFlexSplitLevel {
		coreLot, flexLot := NormalizeCoreFlexLot(p, lot)
		opened := false
		if coreLot > 0 {
			e.openPosition(side, coreLot, price, KindCore, nextLevel, now)
			opened = true
		}
		if flexLot > 0 {
			e.openPosition(side, flexLot, price, KindFlex, nextLevel, now)
			opened = true
		}
		if opened {
			st.lastNanpinTime = now
		}
	} else {
		e.openPosition(side, lot, price, KindCore, nextLevel, now)
		st.lastNanpinTime = now
	}
}

// openPosition appends a new position and records a core level price.
func (e *Engine) openPosition(side Side, volume, price float64, kind PositionKind, level int, now time.Time) {
	volume = NormalizeLot(volume)
	if volume <= 0 {
		return
	}

	e.positions = append(e.positions, Position{
		Side:     side,
		Volume:   volume,
		Price:    price,
		Kind:     kind,
		Level:    level,
		OpenTime: now,
	})
	e.stats.OpenedTrades++
	e.stats.OpenedLots += volume

	if kind == KindCore && level >= 1 && level <= config.KMaxLevels {
		st := e.state.side(side)
		if st.levelPrice[level-1] <= 0 {
			st.levelPrice[level-1] = price
		}
	}
}

// closeSide closes every position on a side at market and credits the
// realized profit.
func (e *Engine) closeSide(side Side, bid, ask float64, now time.Time) {
	kept := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		if pos.Side != side {
			kept = append(kept, pos)
			continue
		}

		profit := (bid - pos.Price) * pos.Volume * e.params.ContractSize
		if side == SideSell {
			profit = (pos.Price - ask) * pos.Volume * e.params.ContractSize
		}
		e.stats.ClosedProfit += profit
		e.stats.ClosedTrades++

		if pos.Kind == KindCore && pos.Level >= 1 && pos.Level <= config.KMaxLevels {
			if held := now.Sub(pos.OpenTime); held > e.maxLevelHold[pos.Level] {
				e.maxLevelHold[pos.Level] = held
			}
		}
		if e.Debug {
			log.Printf("%s CLOSE %s lot=%.2f profit=%.2f level=%d",
				now.Format(time.RFC3339), pos.Side, pos.Volume, profit, pos.Level)
		}
	}
	e.positions = kept
}

// canActAfter reports whether delaySeconds have elapsed since last; a zero
// last time never blocks.
func canActAfter(last, now time.Time, delaySeconds int) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= time.Duration(delaySeconds)*time.Second
}

// UnrealizedPnL values all open positions at the current quote.
func (e *Engine) UnrealizedPnL(bid, ask float64) float64 {
	total := 0.0
	for _, pos := range e.positions {
		if pos.Side == SideBuy {
			total += (bid - pos.Price) * pos.Volume * e.params.ContractSize
		} else {
			total += (pos.Price - ask) * pos.Volume * e.params.ContractSize
		}
	}
	return total
}

// UsedMargin returns the margin locked by all open positions at the current
// quote, valued at each side's closing price.
func (e *Engine) UsedMargin(bid, ask float64) float64 {
	if e.params.Leverage <= 0 {
		return 0
	}
	total := 0.0
	for _, pos := range e.positions {
		price := bid
		if pos.Side == SideSell {
			price = ask
		}
		total += pos.Volume * e.params.ContractSize * price
	}
	return total / e.params.Leverage
}

// OpenPositionCount returns the number of open positions across both sides.
func (e *Engine) OpenPositionCount() int {
	return len(e.positions)
}

// Positions returns a copy of the open positions.
func (e *Engine) Positions() []Position {
	out := make([]Position, len(e.positions))
	copy(out, e.positions)
	return out
}

// Stats returns the accumulated trade statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// MaxLevelHold returns the longest core hold duration per level (index =
// level, 0 unused).
func (e *Engine) MaxLevelHold() []time.Duration {
	out := make([]time.Duration, len(e.maxLevelHold))
	copy(out, e.maxLevelHold)
	return out
}

// DebitRealized subtracts a loss (margin-call write-off) from the realized
// profit accumulator.
func (e *Engine) DebitRealized(amount float64) {
	e.stats.ClosedProfit -= amount
}

// ResetAll clears every position and rebuilds the symbol state from scratch,
// as after a margin call. Trade statistics survive the reset.
func (e *Engine) ResetAll() {
	e.positions = nil
	e.state = newSymbolState(e.params)
}

// FlexRefs exposes a copy of a side's flex-ref pool for inspection.
func (e *Engine) FlexRefs(side Side) []FlexRef {
	st := e.state.side(side)
	out := make([]FlexRef, len(st.flexRefs))
	copy(out, st.flexRefs)
	return out
}

// LevelPrices exposes a copy of a side's level-price table for inspection.
func (e *Engine) LevelPrices(side Side) []float64 {
	st := e.state.side(side)
	out := make([]float64, len(st.levelPrice))
	copy(out, st.levelPrice)
	return out
}

// SkipCount exposes a side's current skip-ahead level count.
func (e *Engine) SkipCount(side Side) int {
	return e.state.side(side).skipCount
}
