package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

// PrintSetup echoes the run configuration before the replay starts.
func PrintSetup(w io.Writer, p *config.Params, start, end time.Time) {
	fmt.Fprintf(w, "🚀 Backtest setup\n")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Symbol", p.Symbol},
		{"Range", fmt.Sprintf("%s → %s", start.Format(time.RFC3339), end.Format(time.RFC3339))},
		{"Base lot", fmt.Sprintf("%.2f", p.BaseLot)},
		{"Max levels", p.EffectiveMaxLevels()},
		{"Profit base", fmt.Sprintf("%.4f", p.ProfitBase)},
		{"ATR multiplier", fmt.Sprintf("%.2f", p.ATRMultiplier)},
		{"Min ATR", fmt.Sprintf("%.2f", p.MinATR)},
		{"Start balance", fmt.Sprintf("%.2f", p.StartBalance)},
		{"Total capital", fmt.Sprintf("%.2f", p.TotalCapital)},
		{"Fund mode", p.FundMode},
		{"Leverage", fmt.Sprintf("%.0f", p.Leverage)},
	})
	t.Render()
}

// PrintRunResult renders the final run summary as a table.
func PrintRunResult(w io.Writer, p *config.Params, r *backtest.RunResult) {
	fmt.Fprintf(w, "\n📊 Backtest result\n")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendRows([]table.Row{
		{"Range", fmt.Sprintf("%s → %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))},
		{"Ticks", r.Ticks},
		{"Opened trades", r.OpenedTrades},
		{"Closed trades", r.ClosedTrades},
		{"Opened lots", fmt.Sprintf("%.2f", r.OpenedLots)},
		{"Realized PnL", money(r.RealizedPnL)},
		{"Unrealized PnL", money(r.UnrealizedPnL)},
		{"Open positions", r.OpenPositions},
		{"Balance", fmt.Sprintf("%.2f", r.Balance)},
		{"Added funds", fmt.Sprintf("%.2f", r.AddedFunds)},
		{"Remaining funds", fmt.Sprintf("%.2f", r.RemainingFunds)},
		{"Final funds", fmt.Sprintf("%.2f", r.FinalFunds)},
		{"Net profit", money(r.NetProfit(p.TotalCapital))},
		{"Max used margin", fmt.Sprintf("%.2f", r.MaxUsedMargin)},
		{"Margin calls", r.MarginCalls},
	})
	if !r.MaxDrawdownTime.IsZero() {
		t.AppendRow(table.Row{"Max drawdown", fmt.Sprintf("%.2f (%.2f%%) at %s",
			r.MaxDrawdownAmount, r.MaxDrawdownRate*100, r.MaxDrawdownTime.Format(time.RFC3339))})
	} else {
		t.AppendRow(table.Row{"Max drawdown", "n/a"})
	}
	t.AppendRow(table.Row{"Drawdown >50% count", r.DrawdownOver50Count})
	if r.StoppedEarly {
		t.AppendRow(table.Row{"Stopped early", r.StopReason})
	}
	t.Render()

	printLevelHolds(w, r.MaxLevelHoldSeconds)
}

// printLevelHolds renders the longest hold per grid level, skipping levels
// that never opened.
func printLevelHolds(w io.Writer, holds []float64) {
	any := false
	for _, v := range holds {
		if v > 0 {
			any = true
			break
		}
	}
	if !any {
		return
	}

	fmt.Fprintf(w, "\n⏱  Longest hold per level\n")
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Level", "Max hold"})
	for level, secs := range holds {
		if level == 0 || secs <= 0 {
			continue
		}
		t.AppendRow(table.Row{level, (time.Duration(secs) * time.Second).String()})
	}
	t.Render()
}

// PrintDayResults renders the per-day breakdown of a parallel run.
func PrintDayResults(w io.Writer, days []backtest.DayResult) {
	fmt.Fprintf(w, "\n📅 Per-day results\n")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Day", "Ticks", "Trades", "Realized", "Max DD", "Margin calls"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	for _, d := range days {
		if d.Run == nil {
			continue
		}
		t.AppendRow(table.Row{
			d.Day.Format("2006-01-02"),
			d.Ticks,
			d.Run.ClosedTrades,
			fmt.Sprintf("%.2f", d.Run.RealizedPnL),
			fmt.Sprintf("%.2f", d.Run.MaxDrawdownAmount),
			d.Run.MarginCalls,
		})
	}
	t.Render()
}

// money colors a signed amount for terminal output.
func money(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if v > 0 {
		return text.FgGreen.Sprint(s)
	}
	if v < 0 {
		return text.FgRed.Sprint(s)
	}
	return s
}
