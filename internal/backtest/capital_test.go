package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

func TestCapitalManagerStartingSplit(t *testing.T) {
	p := config.DefaultParams() // 250k total, 50k start

	c := NewCapitalManager(p)

	assert.InDelta(t, 50_000.0, c.Balance(), 1e-9)
	assert.InDelta(t, 200_000.0, c.Reserve(), 1e-9)
	assert.InDelta(t, 250_000.0, c.FinalFunds(), 1e-9)
}

func TestDailySweepMovesExcessOnNewDay(t *testing.T) {
	p := config.DefaultParams()
	p.FundMode = config.FundModeDailySweep
	c := NewCapitalManager(p)

	day1 := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Zero(t, c.OnTickDate(day1), "first tick establishes the date")

	c.Credit(10_000, day1)
	assert.Zero(t, c.OnTickDate(day1.Add(time.Hour)), "same day, no sweep")

	day2 := day1.AddDate(0, 0, 1)
	swept := c.OnTickDate(day2)
	assert.InDelta(t, 10_000.0, swept, 1e-9)
	assert.InDelta(t, 50_000.0, c.Balance(), 1e-9)
	assert.InDelta(t, 210_000.0, c.Reserve(), 1e-9)

	// Below the start balance nothing moves.
	assert.Zero(t, c.OnTickDate(day2.AddDate(0, 0, 1)))
}

func TestChunk50kTransfers(t *testing.T) {
	p := config.DefaultParams()
	p.FundMode = config.FundModeChunk50k
	c := NewCapitalManager(p)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	c.Credit(160_000, now) // balance 210k

	assert.InDelta(t, 60_000.0, c.Balance(), 1e-9, "50k chunks move out while above 100k")
	assert.InDelta(t, 350_000.0, c.Reserve(), 1e-9)
}

func TestChunk10kTransfers(t *testing.T) {
	p := config.DefaultParams()
	p.FundMode = config.FundModeChunk10k
	c := NewCapitalManager(p)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	c.Credit(25_000, now) // balance 75k

	assert.InDelta(t, 55_000.0, c.Balance(), 1e-9)
	assert.InDelta(t, 220_000.0, c.Reserve(), 1e-9)
}

func TestFundModeOffKeepsBalance(t *testing.T) {
	p := config.DefaultParams()
	c := NewCapitalManager(p)
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	c.Credit(200_000, now)

	assert.InDelta(t, 250_000.0, c.Balance(), 1e-9)
	assert.InDelta(t, 200_000.0, c.Reserve(), 1e-9)
}

func TestWipeAndRefund(t *testing.T) {
	p := config.DefaultParams()
	p.TotalCapital = 100_000
	p.StartBalance = 50_000
	c := NewCapitalManager(p)

	loss := c.WipeBalance()
	assert.InDelta(t, 50_000.0, loss, 1e-9)
	assert.Zero(t, c.Balance())

	require.True(t, c.Refund())
	assert.InDelta(t, 50_000.0, c.Balance(), 1e-9)
	assert.Zero(t, c.Reserve())
	assert.InDelta(t, 50_000.0, c.AddedFunds(), 1e-9)

	c.WipeBalance()
	assert.False(t, c.Refund(), "reserve exhausted")
	assert.Zero(t, c.FinalFunds())
}
