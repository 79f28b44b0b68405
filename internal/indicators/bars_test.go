package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarAggregatorBuildsOHLC(t *testing.T) {
	agg := NewBarAggregator(time.Minute)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	assert.Nil(t, agg.Update(start, 2000.0))
	assert.Nil(t, agg.Update(start.Add(10*time.Second), 2003.0))
	assert.Nil(t, agg.Update(start.Add(20*time.Second), 1998.0))
	assert.Nil(t, agg.Update(start.Add(30*time.Second), 2001.0))

	bar, ok := agg.Current()
	require.True(t, ok)
	assert.Equal(t, start, bar.Start)
	assert.InDelta(t, 2000.0, bar.Open, 1e-9)
	assert.InDelta(t, 2003.0, bar.High, 1e-9)
	assert.InDelta(t, 1998.0, bar.Low, 1e-9)
	assert.InDelta(t, 2001.0, bar.Close, 1e-9)
}

func TestBarAggregatorSealsOnBoundary(t *testing.T) {
	agg := NewBarAggregator(time.Minute)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	agg.Update(start, 2000.0)
	agg.Update(start.Add(59*time.Second), 2005.0)

	sealed := agg.Update(start.Add(time.Minute), 2006.0)
	require.NotNil(t, sealed)
	assert.Equal(t, start, sealed.Start)
	assert.InDelta(t, 2005.0, sealed.Close, 1e-9)

	// The new bar opens at the boundary tick.
	bar, ok := agg.Current()
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Minute), bar.Start)
	assert.InDelta(t, 2006.0, bar.Open, 1e-9)
}

func TestBarAggregatorSealsAcrossGaps(t *testing.T) {
	agg := NewBarAggregator(time.Minute)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	agg.Update(start, 2000.0)
	sealed := agg.Update(start.Add(5*time.Minute), 2010.0)

	require.NotNil(t, sealed)
	assert.Equal(t, start, sealed.Start)

	bar, _ := agg.Current()
	assert.Equal(t, start.Add(5*time.Minute), bar.Start)
}

func TestTrueRange(t *testing.T) {
	bar := barAt(time.Time{}, 2000, 2004, 1998, 2002)

	assert.InDelta(t, 6.0, trueRange(bar, 2000), 1e-9)
	assert.InDelta(t, 12.0, trueRange(bar, 2010), 1e-9, "gap down dominates")
	assert.InDelta(t, 14.0, trueRange(bar, 1990), 1e-9, "gap up dominates")
}
