package backtest

import (
	"log"
	"time"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

// Chunk-transfer thresholds for fund modes 2 and 3.
const (
	chunk50kThreshold = 100_000.0
	chunk50kAmount    = 50_000.0
	chunk10kThreshold = 60_000.0
	chunk10kAmount    = 10_000.0
)

// CapitalManager tracks the trading balance and the off-account reserve.
// The reserve starts at TotalCapital-StartBalance, receives fund-management
// transfers, and re-funds the balance after a margin call.
type CapitalManager struct {
	params *config.Params

	balance float64
	reserve float64
	added   float64

	lastDate time.Time

	// LogMode mirrors the engine's hourly logging switch.
	LogMode bool
}

// NewCapitalManager creates a manager with the configured starting split.
func NewCapitalManager(p *config.Params) *CapitalManager {
	reserve := p.TotalCapital - p.StartBalance
	if reserve < 0 {
		reserve = 0
	}
	return &CapitalManager{
		params:  p,
		balance: p.StartBalance,
		reserve: reserve,
	}
}

// Balance returns the current trading balance.
func (c *CapitalManager) Balance() float64 { return c.balance }

// Reserve returns the funds held outside the trading account.
func (c *CapitalManager) Reserve() float64 { return c.reserve }

// AddedFunds returns the total re-injected after margin calls.
func (c *CapitalManager) AddedFunds() float64 { return c.added }

// FinalFunds returns balance plus reserve, the run's terminal capital.
func (c *CapitalManager) FinalFunds() float64 { return c.balance + c.reserve }

// OnTickDate applies the mode-1 daily sweep on the first tick of a new
// calendar day and returns the amount swept to the reserve.
func (c *CapitalManager) OnTickDate(now time.Time) float64 {
	y, m, d := now.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	first := c.lastDate.IsZero()
	newDay := !first && !date.Equal(c.lastDate)
	c.lastDate = date

	if !newDay || c.params.FundMode != config.FundModeDailySweep {
		return 0
	}
	if c.balance <= c.params.StartBalance {
		return 0
	}

	excess := c.balance - c.params.StartBalance
	c.transfer(excess, now, "FUND_TRANSFER_MODE1")
	return excess
}

// Credit applies a realized profit delta to the balance, then runs the
// chunk-based fund modes.
func (c *CapitalManager) Credit(delta float64, now time.Time) {
	c.balance += delta

	switch c.params.FundMode {
	case config.FundModeChunk50k:
		for c.balance > chunk50kThreshold {
			c.transfer(chunk50kAmount, now, "FUND_TRANSFER_MODE2")
		}
	case config.FundModeChunk10k:
		for c.balance > chunk10kThreshold {
			c.transfer(chunk10kAmount, now, "FUND_TRANSFER_MODE3")
		}
	}
}

// transfer moves amount from balance to reserve, capped at the balance.
func (c *CapitalManager) transfer(amount float64, now time.Time, label string) {
	if amount > c.balance {
		amount = c.balance
	}
	if amount <= 0 {
		return
	}
	c.balance -= amount
	c.reserve += amount
	if c.LogMode {
		log.Printf("%s %s amount=%.2f balance=%.2f reserve=%.2f",
			now.Format(time.RFC3339), label, amount, c.balance, c.reserve)
	}
}

// WipeBalance zeroes the balance on a margin call and returns the loss.
func (c *CapitalManager) WipeBalance() float64 {
	loss := c.balance
	c.balance = 0
	return loss
}

// Refund re-injects StartBalance from the reserve after a margin call.
// Returns false when the reserve is exhausted and the run must stop.
func (c *CapitalManager) Refund() bool {
	if c.reserve <= 0 {
		return false
	}
	c.added += c.params.StartBalance
	c.reserve -= c.params.StartBalance
	if c.reserve < 0 {
		c.reserve = 0
	}
	c.balance = c.params.StartBalance
	return true
}
