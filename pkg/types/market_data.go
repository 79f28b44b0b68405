package types

import "time"

// Tick represents a single bid/ask quote for a symbol at a point in time.
// Ticks are the only market data the replay core ever consumes; they must
// arrive in non-decreasing timestamp order.
type Tick struct {
	Time time.Time `json:"time"`
	Bid  float64   `json:"bid"`
	Ask  float64   `json:"ask"`
}

// Bar represents a fixed-width OHLC bar built from ticks.
type Bar struct {
	Start time.Time `json:"start"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Mid returns the quote midpoint, used for display only.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}
