package strategy

import (
	"time"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

// Side identifies one of the two independent position baskets.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String returns "buy" or "sell".
func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// PositionKind classifies a position as a level's primary ("core") position
// or the split-off flex part that cycles through partial profit and refill.
type PositionKind int

const (
	KindCore PositionKind = iota
	KindFlex
)

// Position is one open position inside a basket. Positions are created by
// the state machine and destroyed on close; the basket owns them exclusively.
type Position struct {
	Side     Side
	Volume   float64
	Price    float64
	Kind     PositionKind
	Level    int
	OpenTime time.Time
}

// FlexRef is one slot of the fixed-size flex reopen pool: a recorded
// (price, lot, level) from a flex position that took partial profit and may
// reopen at the same trigger.
type FlexRef struct {
	Active bool
	Price  float64
	Lot    float64
	Level  int
}

// BasketInfo is a pure projection over one side's live positions, recomputed
// every tick and never persisted.
type BasketInfo struct {
	Count      int     // all open positions on the side
	LevelCount int     // core positions only
	Volume     float64 // total lots
	AvgPrice   float64 // volume-weighted entry price
	MinPrice   float64
	MaxPrice   float64
	Profit     float64 // floating profit at the current quote
}

// sideState carries everything a basket needs across ticks. Reset in full on
// basket closure.
type sideState struct {
	levelPrice []float64 // level-price table, index i = level i+1, 0 = unset
	flexRefs   []FlexRef
	gridStep   float64

	lastCloseTime  time.Time
	lastNanpinTime time.Time
	prevCount      int

	hasPartial      bool
	realizedPartial float64

	// Trend-stop bookkeeping: how many levels the active nanpin-stop has
	// skipped past, and the price the skip tracking last advanced from.
	trendStop bool
	skipCount int
	skipRef   float64
	skipStep  float64
}

func newSideState() sideState {
	return sideState{
		levelPrice: make([]float64, config.KMaxLevels),
		flexRefs:   make([]FlexRef, config.KMaxLevels),
	}
}

// resetAfterClose clears the transient per-basket state once the side is
// empty again, recording the close time for the restart delay.
func (s *sideState) resetAfterClose(now time.Time) {
	s.lastCloseTime = now
	s.lastNanpinTime = time.Time{}
	s.hasPartial = false
	s.realizedPartial = 0
	s.flexRefs = make([]FlexRef, config.KMaxLevels)
	s.levelPrice = make([]float64, config.KMaxLevels)
	s.gridStep = 0
	s.trendStop = false
	s.skipCount = 0
	s.skipRef = 0
	s.skipStep = 0
}

// SymbolState is the mutable per-symbol strategy state, created once per run
// and rebuilt from scratch on a margin call.
type SymbolState struct {
	startTime      time.Time
	started        bool
	initialStarted bool
	safetyActive   bool

	lotSeq []float64
	buy    sideState
	sell   sideState
}

func newSymbolState(p *config.Params) *SymbolState {
	return &SymbolState{
		lotSeq: BuildLotSequence(p),
		buy:    newSideState(),
		sell:   newSideState(),
	}
}

// side returns the state bucket for a side.
func (st *SymbolState) side(s Side) *sideState {
	if s == SideBuy {
		return &st.buy
	}
	return &st.sell
}

// addFlexRef registers a reopen slot. At most one active ref may exist per
// exact (price, lot, level) triple; when the pool is full the ref is dropped
// silently, which caps memory at the level count.
func addFlexRef(refs []FlexRef, price, lot float64, level int) bool {
	for i := range refs {
		ref := &refs[i]
		if ref.Active && abs(ref.Price-price) <= 1e-9 && abs(ref.Lot-lot) <= 1e-9 && ref.Level == level {
			return false
		}
	}
	for i := range refs {
		if !refs[i].Active {
			refs[i] = FlexRef{Active: true, Price: price, Lot: lot, Level: level}
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// InferPoint returns the instrument's tick size from its price magnitude
// (0.01 for metals-like quotes, 0.00001 for FX-style quotes).
func InferPoint(price float64) float64 {
	if price >= 10.0 {
		return 0.01
	}
	return 0.00001
}
