package optimization

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/fxreplay/nanpin-backtest/pkg/config"
)

// Lot-walk bounds. The walk starts at the smallest lot worth trading and
// stops on the first decline in final funds.
const (
	StartLot = 0.04
	LotStep  = 0.01
)

// TrialResult is the outcome of one lot trial as seen by the optimizer.
type TrialResult struct {
	FinalFunds         float64
	MarginCallDetected bool
}

// Runner executes one full backtest for a parameter set. The production
// runner wraps the backtest engine; tests substitute a table of outcomes.
type Runner interface {
	RunTrial(ctx context.Context, p *config.Params) (TrialResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, p *config.Params) (TrialResult, error)

// RunTrial implements Runner.
func (f RunnerFunc) RunTrial(ctx context.Context, p *config.Params) (TrialResult, error) {
	return f(ctx, p)
}

// SearchResult is the outcome of a base-lot walk.
type SearchResult struct {
	BestLot    float64
	BestFinal  float64
	Trials     int
	StopReason string
}

// LotSearch walks the base lot upward in fixed steps, one full backtest per
// step. Final funds are unimodal enough in practice that the walk stops on
// the first decline; it also stops on the first margin call when configured.
type LotSearch struct {
	base   *config.Params
	runner Runner

	// StopOnMarginCall ends the walk at the first trial that margin-called.
	StopOnMarginCall bool
	// Log receives one progress line per trial when non-nil.
	Log io.Writer
}

// NewLotSearch creates a search over clones of the base parameter set.
func NewLotSearch(base *config.Params, runner Runner) *LotSearch {
	return &LotSearch{base: base, runner: runner}
}

// Run performs the walk and returns the best lot found.
func (s *LotSearch) Run(ctx context.Context) (*SearchResult, error) {
	result := &SearchResult{BestLot: StartLot, BestFinal: -1}

	lot := StartLot
	prevFinal := math.Inf(-1)
	havePrev := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := s.base.Clone()
		p.BaseLot = lot
		trial, err := s.runner.RunTrial(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("trial lot=%.2f: %w", lot, err)
		}
		result.Trials++
		s.logf("Optimize lot=%.2f final_funds=%.2f", lot, trial.FinalFunds)

		if trial.FinalFunds > result.BestFinal {
			result.BestFinal = trial.FinalFunds
			result.BestLot = lot
		}
		if trial.MarginCallDetected && s.StopOnMarginCall {
			result.StopReason = "margin_call"
			s.logf("Optimization stop (margin call) at lot=%.2f final_funds=%.2f", lot, trial.FinalFunds)
			break
		}
		if havePrev && trial.FinalFunds < prevFinal {
			result.StopReason = "declining"
			s.logf("Optimization stop at lot=%.2f prev_final=%.2f final_funds=%.2f", lot, prevFinal, trial.FinalFunds)
			break
		}

		prevFinal = trial.FinalFunds
		havePrev = true
		// Round to the lot step so float drift never skips a candidate.
		lot = math.Round((lot+LotStep)*100) / 100
	}

	s.logf("Best lot=%.2f best_final_funds=%.2f", result.BestLot, result.BestFinal)
	return result, nil
}

func (s *LotSearch) logf(format string, args ...interface{}) {
	if s.Log == nil {
		return
	}
	fmt.Fprintf(s.Log, format+"\n", args...)
}
