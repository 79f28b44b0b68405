package data

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FindLatestDate walks the data directory looking for the newest day file of
// the given symbol. Returns the zero time when no data file exists.
func FindLatestDate(dataDir, symbol string) (time.Time, error) {
	prefix := symbol + "_"
	suffix := ".csv.gz"

	var latest time.Time
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			return nil
		}
		dateText := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		day, parseErr := time.Parse("2006-01-02", dateText)
		if parseErr != nil {
			return nil // not a day file, ignore
		}
		if day.After(latest) {
			latest = day
		}
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to scan data directory %s: %w", dataDir, err)
	}

	return latest, nil
}

// DefaultRange returns the last 30 days of available data: from midnight 29
// days before the latest day file to that day's end.
func DefaultRange(dataDir, symbol string) (start, end time.Time, err error) {
	latest, err := FindLatestDate(dataDir, symbol)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if latest.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("no data found under %s for %s", dataDir, symbol)
	}

	end = EndOfDay(latest)
	start = latest.AddDate(0, 0, -29)
	return start, end, nil
}

// EndOfDay returns 23:59:59.999 of the given day, matching the range
// convention of the source data.
func EndOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999000000, day.Location())
}

// ParseUserTime parses a user-supplied --from/--to value. Bare dates expand
// to midnight, or to end-of-day when isEnd is set.
func ParseUserTime(value string, isEnd bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date/time value")
	}

	if strings.ContainsAny(value, "T ") {
		ts, err := parseNaiveTime(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date/time %q: %w", value, err)
		}
		return ts, nil
	}

	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	if isEnd {
		return EndOfDay(day), nil
	}
	return day, nil
}
