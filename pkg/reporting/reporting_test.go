package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

func sampleResult() *backtest.RunResult {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return &backtest.RunResult{
		Symbol:              "XAUUSD",
		Start:               start,
		End:                 start.Add(24 * time.Hour),
		Ticks:               86400,
		OpenedTrades:        40,
		ClosedTrades:        38,
		OpenedLots:          12.4,
		RealizedPnL:         812.50,
		Balance:             50_812.50,
		FinalFunds:          250_812.50,
		MaxDrawdownAmount:   950.0,
		MaxDrawdownRate:     0.019,
		MaxDrawdownTime:     start.Add(9 * time.Hour),
		MaxLevelHoldSeconds: []float64{0, 60, 3600},
		EquityCurve: []backtest.EquityPoint{
			{Time: start, Balance: 50_000, Equity: 50_000, Reserve: 200_000},
			{Time: start.Add(time.Hour), Balance: 50_200, Equity: 50_150, Reserve: 200_000, Drawdown: 50},
		},
	}
}

func TestPrintRunResult(t *testing.T) {
	var buf bytes.Buffer

	PrintRunResult(&buf, config.DefaultParams(), sampleResult())

	out := buf.String()
	assert.Contains(t, out, "Backtest result")
	assert.Contains(t, out, "86400")
	assert.Contains(t, out, "812.50")
	assert.Contains(t, out, "Longest hold per level")
}

func TestPrintSetupAndDayResults(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	PrintSetup(&buf, config.DefaultParams(), start, start.AddDate(0, 0, 1))
	PrintDayResults(&buf, []backtest.DayResult{
		{RunID: "run-1", Day: start, Ticks: 1000, Run: sampleResult()},
	})

	out := buf.String()
	assert.Contains(t, out, "XAUUSD")
	assert.Contains(t, out, "2025-05-01")
}

func TestWriteJSONRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, WriteJSON(path, config.DefaultParams(), sampleResult(), nil))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		Params *config.Params      `json:"params"`
		Result *backtest.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "XAUUSD", decoded.Result.Symbol)
	assert.InDelta(t, 812.50, decoded.Result.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.2, decoded.Params.BaseLot, 1e-9)
}

func TestWriteExcelCreatesSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	days := []backtest.DayResult{
		{RunID: "run-1", Day: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Ticks: 1000, Run: sampleResult()},
	}

	require.NoError(t, WriteExcel(path, config.DefaultParams(), sampleResult(), days))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{sheetSummary, sheetEquity, sheetDays}, f.GetSheetList())
	symbol, err := f.GetCellValue(sheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", symbol)
}

func TestWriteEquityChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "equity.html")

	require.NoError(t, WriteEquityChart(path, sampleResult()))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "echarts")
	assert.Contains(t, string(payload), "equity curve")
}
