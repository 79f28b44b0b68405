package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

// jsonReport is the on-disk layout of a run export.
type jsonReport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Params      *config.Params       `json:"params"`
	Result      *backtest.RunResult  `json:"result"`
	Days        []backtest.DayResult `json:"days,omitempty"`
}

// WriteJSON exports a run (and optional per-day breakdown) to path.
func WriteJSON(path string, p *config.Params, r *backtest.RunResult, days []backtest.DayResult) error {
	report := jsonReport{
		GeneratedAt: time.Now().UTC(),
		Params:      p,
		Result:      r,
		Days:        days,
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
