package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
	"github.com/fxreplay/nanpin-backtest/internal/monitoring"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
	"github.com/fxreplay/nanpin-backtest/pkg/data"
	"github.com/fxreplay/nanpin-backtest/pkg/reporting"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load() // optional .env, absence is fine

	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	params, err := buildParams(flags)
	if err != nil {
		return err
	}

	dataDir := flags.DataDir
	if !flags.wasSet("data-dir") {
		if env := os.Getenv("NANPIN_DATA_DIR"); env != "" {
			dataDir = env
		}
	}

	start, end, err := resolveRange(flags, dataDir, params.Symbol)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *monitoring.Metrics
	if flags.MetricsAddr != "" {
		metrics = monitoring.NewMetrics()
		go func() {
			if err := metrics.Serve(flags.MetricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	provider := data.NewGzipCSVProvider(dataDir, params.Symbol)
	reporting.PrintSetup(os.Stdout, params, start, end)

	var (
		result *backtest.RunResult
		days   []backtest.DayResult
	)
	started := time.Now()

	if flags.Parallel {
		runner := backtest.NewParallelRunner(params, provider, flags.Workers)
		runner.LogMode = !flags.Quiet
		runner.Metrics = metrics
		days, result, err = runner.Run(ctx, start, end)
		if err != nil {
			return err
		}
	} else {
		ticks, loadErr := provider.LoadRange(start, end)
		if loadErr != nil {
			return loadErr
		}
		engine := backtest.NewEngine(params)
		engine.LogMode = !flags.Quiet
		engine.Debug = flags.Debug
		engine.Metrics = metrics
		result, err = engine.Run(ctx, ticks)
		if err != nil {
			return err
		}
	}
	metrics.ObserveRunDuration(time.Since(started))

	reporting.PrintRunResult(os.Stdout, params, result)
	if len(days) > 0 {
		reporting.PrintDayResults(os.Stdout, days)
	}

	if flags.JSONOut != "" {
		if err := reporting.WriteJSON(flags.JSONOut, params, result, days); err != nil {
			return err
		}
		fmt.Printf("💾 JSON report written to %s\n", flags.JSONOut)
	}
	if flags.XLSXOut != "" {
		if err := reporting.WriteExcel(flags.XLSXOut, params, result, days); err != nil {
			return err
		}
		fmt.Printf("💾 Excel report written to %s\n", flags.XLSXOut)
	}
	if flags.HTMLOut != "" {
		if err := reporting.WriteEquityChart(flags.HTMLOut, result); err != nil {
			return err
		}
		fmt.Printf("💾 Equity chart written to %s\n", flags.HTMLOut)
	}

	return nil
}

// buildParams layers the parameter sources: defaults, config file, --set
// overrides, then dedicated flags.
func buildParams(flags *cliFlags) (*config.Params, error) {
	var params *config.Params
	var err error

	if flags.ConfigFile != "" {
		params, err = config.LoadFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		params = config.DefaultParams()
	}

	overrides, err := config.ParseOverrideArgs(flags.Overrides)
	if err != nil {
		return nil, err
	}
	if err := params.ApplyOverrides(overrides); err != nil {
		return nil, err
	}

	if flags.wasSet("base-lot") {
		params.BaseLot = flags.BaseLot
	}
	if flags.wasSet("fund-mode") {
		params.FundMode = flags.FundMode
	}
	if flags.wasSet("stop-on-margin-call") {
		params.StopOnMarginCall = flags.StopOnMarginCall
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// resolveRange turns --from/--to into a concrete range, defaulting to the
// last 30 days of available data.
func resolveRange(flags *cliFlags, dataDir, symbol string) (start, end time.Time, err error) {
	if flags.From == "" && flags.To == "" {
		return data.DefaultRange(dataDir, symbol)
	}

	if flags.From != "" {
		start, err = data.ParseUserTime(flags.From, false)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if flags.To != "" {
		end, err = data.ParseUserTime(flags.To, true)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if start.IsZero() {
		start = end.AddDate(0, 0, -29)
	}
	if end.IsZero() {
		latest, findErr := data.FindLatestDate(dataDir, symbol)
		if findErr != nil {
			return time.Time{}, time.Time{}, findErr
		}
		if latest.IsZero() {
			return time.Time{}, time.Time{}, fmt.Errorf("no data found under %s for %s", dataDir, symbol)
		}
		end = data.EndOfDay(latest)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s before start %s", end, start)
	}
	return start, end, nil
}
