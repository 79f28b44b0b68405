package data

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fxreplay/nanpin-backtest/pkg/types"
)

// TickProvider supplies an ordered tick sequence for a time range. The replay
// core only ever sees ticks that exist; data gaps are absorbed here.
type TickProvider interface {
	// LoadRange returns all ticks with Time in [start, end], in file order.
	LoadRange(start, end time.Time) ([]types.Tick, error)
}

// GzipCSVProvider reads per-day gzip-compressed CSV tick files laid out as
// <dataDir>/<year>/<SYMBOL>_<YYYY-MM-DD>.csv.gz with a
// "datetime,bid,ask" header. Missing day files are skipped silently;
// malformed rows are dropped.
type GzipCSVProvider struct {
	dataDir string
	symbol  string
}

// NewGzipCSVProvider creates a provider rooted at dataDir for one symbol.
func NewGzipCSVProvider(dataDir, symbol string) *GzipCSVProvider {
	return &GzipCSVProvider{
		dataDir: dataDir,
		symbol:  symbol,
	}
}

// GetName returns the name of the data provider.
func (p *GzipCSVProvider) GetName() string {
	return "Gzip CSV Tick Provider"
}

// LoadRange loads every tick inside [start, end], walking one day file at a
// time.
func (p *GzipCSVProvider) LoadRange(start, end time.Time) ([]types.Tick, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var ticks []types.Tick

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	lastDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	for !day.After(lastDay) {
		path := p.dayFilePath(day)
		dayTicks, err := p.loadDayFile(path, start, end)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, dayTicks...)
		day = day.AddDate(0, 0, 1)
	}

	return ticks, nil
}

// dayFilePath builds the path of one day's tick file.
func (p *GzipCSVProvider) dayFilePath(day time.Time) string {
	name := fmt.Sprintf("%s_%s.csv.gz", p.symbol, day.Format("2006-01-02"))
	return filepath.Join(p.dataDir, strconv.Itoa(day.Year()), name)
}

// loadDayFile reads one day file, filtering to [start, end]. A missing file
// is a tolerated data gap, not an error.
func (p *GzipCSVProvider) loadDayFile(path string, start, end time.Time) ([]types.Tick, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open tick file %s: %w", path, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tick file %s: %w", path, err)
	}
	defer gz.Close()

	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	timeCol, bidCol, askCol, err := resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("tick file %s: %w", path, err)
	}

	var ticks []types.Tick
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading %s: %w", path, err)
		}

		tick, ok := parseTickRecord(record, timeCol, bidCol, askCol)
		if !ok {
			continue // malformed row, drop before it reaches the core
		}
		if tick.Time.Before(start) || tick.Time.After(end) {
			continue
		}
		ticks = append(ticks, tick)
	}

	return ticks, nil
}

// resolveColumns locates datetime/bid/ask columns in the header row.
func resolveColumns(header []string) (timeCol, bidCol, askCol int, err error) {
	timeCol, bidCol, askCol = -1, -1, -1
	for i, name := range header {
		switch name {
		case "datetime":
			timeCol = i
		case "bid":
			bidCol = i
		case "ask":
			askCol = i
		}
	}
	if timeCol < 0 || bidCol < 0 || askCol < 0 {
		return 0, 0, 0, fmt.Errorf("header %v missing datetime/bid/ask columns", header)
	}
	return timeCol, bidCol, askCol, nil
}

// parseTickRecord parses one CSV row into a tick. Timestamps are naive local
// times in the source data and are kept that way.
func parseTickRecord(record []string, timeCol, bidCol, askCol int) (types.Tick, bool) {
	max := timeCol
	if bidCol > max {
		max = bidCol
	}
	if askCol > max {
		max = askCol
	}
	if len(record) <= max {
		return types.Tick{}, false
	}

	ts, err := parseNaiveTime(record[timeCol])
	if err != nil {
		return types.Tick{}, false
	}

	bid, err := strconv.ParseFloat(record[bidCol], 64)
	if err != nil {
		return types.Tick{}, false
	}

	ask, err := strconv.ParseFloat(record[askCol], 64)
	if err != nil {
		return types.Tick{}, false
	}

	if bid <= 0 || ask <= 0 {
		return types.Tick{}, false
	}

	return types.Tick{Time: ts, Bid: bid, Ask: ask}, true
}

// parseNaiveTime accepts ISO timestamps with or without fractional seconds.
func parseNaiveTime(value string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}
