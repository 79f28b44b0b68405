package reporting

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
)

// WriteEquityChart renders the hourly equity curve to a standalone HTML file.
func WriteEquityChart(path string, r *backtest.RunResult) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s equity curve", r.Symbol),
			Subtitle: fmt.Sprintf("%s → %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Equity", Scale: opts.Bool(true)}),
	)

	labels := make([]string, 0, len(r.EquityCurve))
	equity := make([]opts.LineData, 0, len(r.EquityCurve))
	balance := make([]opts.LineData, 0, len(r.EquityCurve))
	for _, pt := range r.EquityCurve {
		labels = append(labels, pt.Time.Format(time.DateTime))
		equity = append(equity, opts.LineData{Value: pt.Equity})
		balance = append(balance, opts.LineData{Value: pt.Balance})
	}

	line.SetXAxis(labels).
		AddSeries("Equity", equity).
		AddSeries("Balance", balance).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer out.Close()

	if err := line.Render(out); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
