package reporting

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

const (
	sheetSummary = "Summary"
	sheetEquity  = "Equity"
	sheetDays    = "Days"
)

// WriteExcel exports a run to an xlsx workbook: a summary sheet, the hourly
// equity curve, and the per-day breakdown when one exists.
func WriteExcel(path string, p *config.Params, r *backtest.RunResult, days []backtest.DayResult) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetSummary)
	if err := writeSummarySheet(f, p, r); err != nil {
		return err
	}
	if err := writeEquitySheet(f, r); err != nil {
		return err
	}
	if len(days) > 0 {
		if err := writeDaysSheet(f, days); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, p *config.Params, r *backtest.RunResult) error {
	rows := [][]interface{}{
		{"Symbol", r.Symbol},
		{"Start", r.Start.Format(time.RFC3339)},
		{"End", r.End.Format(time.RFC3339)},
		{"Ticks", r.Ticks},
		{"Opened trades", r.OpenedTrades},
		{"Closed trades", r.ClosedTrades},
		{"Opened lots", r.OpenedLots},
		{"Realized PnL", r.RealizedPnL},
		{"Unrealized PnL", r.UnrealizedPnL},
		{"Open positions", r.OpenPositions},
		{"Balance", r.Balance},
		{"Added funds", r.AddedFunds},
		{"Remaining funds", r.RemainingFunds},
		{"Final funds", r.FinalFunds},
		{"Net profit", r.NetProfit(p.TotalCapital)},
		{"Max drawdown amount", r.MaxDrawdownAmount},
		{"Max drawdown rate", r.MaxDrawdownRate},
		{"Drawdown over 50% count", r.DrawdownOver50Count},
		{"Max used margin", r.MaxUsedMargin},
		{"Margin calls", r.MarginCalls},
		{"Base lot", p.BaseLot},
		{"Profit base", p.ProfitBase},
		{"ATR multiplier", p.ATRMultiplier},
		{"Fund mode", p.FundMode},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell: %w", err)
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return fmt.Errorf("summary row: %w", err)
		}
	}
	return nil
}

func writeEquitySheet(f *excelize.File, r *backtest.RunResult) error {
	if _, err := f.NewSheet(sheetEquity); err != nil {
		return fmt.Errorf("equity sheet: %w", err)
	}

	header := []interface{}{"Time", "Balance", "Equity", "Reserve", "Drawdown"}
	if err := f.SetSheetRow(sheetEquity, "A1", &header); err != nil {
		return fmt.Errorf("equity header: %w", err)
	}
	for i, pt := range r.EquityCurve {
		row := []interface{}{
			pt.Time.Format(time.RFC3339),
			pt.Balance,
			pt.Equity,
			pt.Reserve,
			pt.Drawdown,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("equity cell: %w", err)
		}
		if err := f.SetSheetRow(sheetEquity, cell, &row); err != nil {
			return fmt.Errorf("equity row: %w", err)
		}
	}
	return nil
}

func writeDaysSheet(f *excelize.File, days []backtest.DayResult) error {
	if _, err := f.NewSheet(sheetDays); err != nil {
		return fmt.Errorf("days sheet: %w", err)
	}

	header := []interface{}{"Day", "Run ID", "Ticks", "Closed trades", "Realized PnL", "Max drawdown", "Margin calls"}
	if err := f.SetSheetRow(sheetDays, "A1", &header); err != nil {
		return fmt.Errorf("days header: %w", err)
	}
	for i, d := range days {
		if d.Run == nil {
			continue
		}
		row := []interface{}{
			d.Day.Format("2006-01-02"),
			d.RunID,
			d.Ticks,
			d.Run.ClosedTrades,
			d.Run.RealizedPnL,
			d.Run.MaxDrawdownAmount,
			d.Run.MarginCalls,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("days cell: %w", err)
		}
		if err := f.SetSheetRow(sheetDays, cell, &row); err != nil {
			return fmt.Errorf("days row: %w", err)
		}
	}
	return nil
}
