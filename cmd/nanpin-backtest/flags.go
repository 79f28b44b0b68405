package main

import (
	"flag"
	"fmt"
	"strings"
)

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// cliFlags holds every command-line option of the backtest binary.
type cliFlags struct {
	DataDir    string
	ConfigFile string
	From       string
	To         string

	BaseLot          float64
	FundMode         int
	StopOnMarginCall bool
	Overrides        stringList

	Parallel bool
	Workers  int

	Debug   bool
	Quiet   bool
	JSONOut string
	XLSXOut string
	HTMLOut string

	MetricsAddr string

	// set tracks which flags were passed explicitly, so zero values can be
	// told apart from real overrides.
	set map[string]bool
}

// parseFlags parses os.Args style arguments into a cliFlags.
func parseFlags(args []string) (*cliFlags, error) {
	f := &cliFlags{set: map[string]bool{}}

	fs := flag.NewFlagSet("nanpin-backtest", flag.ContinueOnError)
	fs.StringVar(&f.DataDir, "data-dir", "data/XAUUSD", "Root tick data directory")
	fs.StringVar(&f.ConfigFile, "config", "", "Parameter file (JSON or YAML)")
	fs.StringVar(&f.From, "from", "", "Start date/time (YYYY-MM-DD or ISO)")
	fs.StringVar(&f.To, "to", "", "End date/time (YYYY-MM-DD or ISO)")

	fs.Float64Var(&f.BaseLot, "base-lot", 0, "Override base lot size")
	fs.IntVar(&f.FundMode, "fund-mode", 0, "Fund management mode: 0=off, 1=daily sweep, 2=50k chunks, 3=10k chunks")
	fs.BoolVar(&f.StopOnMarginCall, "stop-on-margin-call", false, "Stop the run at the first margin call")
	fs.Var(&f.Overrides, "set", "Parameter override key=value (repeatable)")

	fs.BoolVar(&f.Parallel, "parallel", false, "Run each day as an independent run on a worker pool")
	fs.IntVar(&f.Workers, "workers", 0, "Worker count for --parallel (default GOMAXPROCS)")

	fs.BoolVar(&f.Debug, "debug", false, "Print trade-level debug logs")
	fs.BoolVar(&f.Quiet, "quiet", false, "Suppress hourly progress logs")
	fs.StringVar(&f.JSONOut, "json-out", "", "Write the run result to a JSON file")
	fs.StringVar(&f.XLSXOut, "xlsx-out", "", "Write the run result to an Excel workbook")
	fs.StringVar(&f.HTMLOut, "chart-out", "", "Write the equity curve to an HTML chart")

	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9095)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// wasSet reports whether the named flag was passed explicitly.
func (f *cliFlags) wasSet(name string) bool { return f.set[name] }
