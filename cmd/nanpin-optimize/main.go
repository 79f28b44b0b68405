// Command nanpin-optimize walks the base lot upward over a fixed tick range,
// one full backtest per candidate, and reports the best-performing lot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fxreplay/nanpin-backtest/internal/backtest"
	"github.com/fxreplay/nanpin-backtest/internal/monitoring"
	"github.com/fxreplay/nanpin-backtest/pkg/config"
	"github.com/fxreplay/nanpin-backtest/pkg/data"
	"github.com/fxreplay/nanpin-backtest/pkg/optimization"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("nanpin-optimize", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data/XAUUSD", "Root tick data directory")
	configFile := fs.String("config", "", "Parameter file (JSON or YAML)")
	from := fs.String("from", "", "Start date/time (YYYY-MM-DD or ISO)")
	to := fs.String("to", "", "End date/time (YYYY-MM-DD or ISO)")
	fundMode := fs.Int("fund-mode", 0, "Fund management mode: 0=off, 1=daily sweep, 2=50k chunks, 3=10k chunks")
	stopOnMC := fs.Bool("stop-on-margin-call", false, "Stop the lot walk at the first margin call")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	var overrides stringList
	fs.Var(&overrides, "set", "Parameter override key=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	params, err := buildParams(*configFile, overrides, *fundMode, fs)
	if err != nil {
		return err
	}

	dir := *dataDir
	if env := os.Getenv("NANPIN_DATA_DIR"); env != "" && !wasSet(fs, "data-dir") {
		dir = env
	}

	start, end, err := resolveRange(dir, params.Symbol, *from, *to)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *monitoring.Metrics
	if *metricsAddr != "" {
		metrics = monitoring.NewMetrics()
		go func() {
			if err := metrics.Serve(*metricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	// One load, many trials: the tick slice is immutable input, so every
	// candidate replays the same data.
	provider := data.NewGzipCSVProvider(dir, params.Symbol)
	fmt.Printf("🔍 Optimizing base lot over %s → %s\n",
		start.Format(time.RFC3339), end.Format(time.RFC3339))
	ticks, err := provider.LoadRange(start, end)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("no ticks in range %s..%s", start, end)
	}

	runner := optimization.RunnerFunc(func(ctx context.Context, p *config.Params) (optimization.TrialResult, error) {
		engine := backtest.NewEngine(p)
		engine.Metrics = metrics
		result, err := engine.Run(ctx, ticks)
		if err != nil {
			return optimization.TrialResult{}, err
		}
		return optimization.TrialResult{
			FinalFunds:         result.FinalFunds,
			MarginCallDetected: result.MarginCallDetected,
		}, nil
	})

	search := optimization.NewLotSearch(params, runner)
	search.StopOnMarginCall = *stopOnMC
	search.Log = os.Stdout

	result, err := search.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Best lot=%.2f final_funds=%.2f trials=%d\n",
		result.BestLot, result.BestFinal, result.Trials)
	return nil
}

func buildParams(configFile string, overrides stringList, fundMode int, fs *flag.FlagSet) (*config.Params, error) {
	var params *config.Params
	var err error

	if configFile != "" {
		params, err = config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		params = config.DefaultParams()
	}

	parsed, err := config.ParseOverrideArgs(overrides)
	if err != nil {
		return nil, err
	}
	if err := params.ApplyOverrides(parsed); err != nil {
		return nil, err
	}
	if wasSet(fs, "fund-mode") {
		params.FundMode = fundMode
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func wasSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func resolveRange(dataDir, symbol, from, to string) (start, end time.Time, err error) {
	if from == "" && to == "" {
		return data.DefaultRange(dataDir, symbol)
	}

	if from != "" {
		start, err = data.ParseUserTime(from, false)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to != "" {
		end, err = data.ParseUserTime(to, true)
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
