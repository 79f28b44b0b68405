package data

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDayFile creates <dir>/<year>/<symbol>_<day>.csv.gz with the given rows.
func writeDayFile(t *testing.T, dir, symbol, day string, rows []string) {
	t.Helper()

	date, err := time.Parse("2006-01-02", day)
	require.NoError(t, err)
	yearDir := filepath.Join(dir, date.Format("2006"))
	require.NoError(t, os.MkdirAll(yearDir, 0o755))

	path := filepath.Join(yearDir, symbol+"_"+day+".csv.gz")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	_, err = gz.Write([]byte("datetime,bid,ask\n"))
	require.NoError(t, err)
	for _, row := range rows {
		_, err = gz.Write([]byte(row + "\n"))
		require.NoError(t, err)
	}
}

func TestLoadRangeReadsAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeDayFile(t, dir, "XAUUSD", "2025-05-01", []string{
		"2025-05-01T00:00:01.123,2000.00,2000.05",
		"2025-05-01T10:00:00,2001.00,2001.05",
		"2025-05-01T23:00:00,2002.00,2002.05",
	})

	provider := NewGzipCSVProvider(dir, "XAUUSD")
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ticks, err := provider.LoadRange(start, start.Add(12*time.Hour))

	require.NoError(t, err)
	require.Len(t, ticks, 2, "the 23:00 tick falls outside the range")
	assert.InDelta(t, 2000.00, ticks[0].Bid, 1e-9)
	assert.InDelta(t, 2001.05, ticks[1].Ask, 1e-9)
	assert.Equal(t, 123*int(time.Millisecond), ticks[0].Time.Nanosecond())
}

func TestLoadRangeDropsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	writeDayFile(t, dir, "XAUUSD", "2025-05-01", []string{
		"2025-05-01T00:00:01,2000.00,2000.05",
		"not-a-time,2000.00,2000.05",
		"2025-05-01T00:00:02,abc,2000.05",
		"2025-05-01T00:00:03,-1,2000.05",
		"2025-05-01T00:00:04,2000.00",
		"2025-05-01T00:00:05,2000.10,2000.15",
	})

	provider := NewGzipCSVProvider(dir, "XAUUSD")
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ticks, err := provider.LoadRange(start, EndOfDay(start))

	require.NoError(t, err)
	assert.Len(t, ticks, 2, "malformed and non-positive rows dropped")
}

func TestLoadRangeSkipsMissingDays(t *testing.T) {
	dir := t.TempDir()
	writeDayFile(t, dir, "XAUUSD", "2025-05-01", []string{
		"2025-05-01T00:00:01,2000.00,2000.05",
	})
	writeDayFile(t, dir, "XAUUSD", "2025-05-03", []string{
		"2025-05-03T00:00:01,2001.00,2001.05",
	})

	provider := NewGzipCSVProvider(dir, "XAUUSD")
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ticks, err := provider.LoadRange(start, EndOfDay(start.AddDate(0, 0, 2)))

	require.NoError(t, err)
	require.Len(t, ticks, 2, "the missing middle day is a data gap, not an error")
	assert.True(t, ticks[0].Time.Before(ticks[1].Time))
}

func TestLoadRangeInvertedRange(t *testing.T) {
	provider := NewGzipCSVProvider(t.TempDir(), "XAUUSD")
	start := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	_, err := provider.LoadRange(start, start.AddDate(0, 0, -1))
	assert.Error(t, err)
}

func TestFindLatestDate(t *testing.T) {
	dir := t.TempDir()
	writeDayFile(t, dir, "XAUUSD", "2025-04-28", nil)
	writeDayFile(t, dir, "XAUUSD", "2025-05-02", nil)
	writeDayFile(t, dir, "EURUSD", "2025-05-09", nil)

	latest, err := FindLatestDate(dir, "XAUUSD")

	require.NoError(t, err)
	assert.Equal(t, "2025-05-02", latest.Format("2006-01-02"), "other symbols are ignored")
}

func TestDefaultRangeCoversThirtyDays(t *testing.T) {
	dir := t.TempDir()
	writeDayFile(t, dir, "XAUUSD", "2025-05-02", nil)

	start, end, err := DefaultRange(dir, "XAUUSD")

	require.NoError(t, err)
	assert.Equal(t, "2025-04-03", start.Format("2006-01-02"))
	assert.Equal(t, "2025-05-02", end.Format("2006-01-02"))
	assert.Equal(t, 23, end.Hour())
}

func TestDefaultRangeNoData(t *testing.T) {
	_, _, err := DefaultRange(t.TempDir(), "XAUUSD")
	assert.Error(t, err)
}

func TestParseUserTime(t *testing.T) {
	ts, err := ParseUserTime("2025-05-01", false)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01T00:00:00", ts.Format("2006-01-02T15:04:05"))

	ts, err = ParseUserTime("2025-05-01", true)
	require.NoError(t, err)
	assert.Equal(t, 23, ts.Hour())

	ts, err = ParseUserTime("2025-05-01T10:30:00", false)
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Hour())

	_, err = ParseUserTime("yesterday", false)
	assert.Error(t, err)

	_, err = ParseUserTime("", false)
	assert.Error(t, err)
}
