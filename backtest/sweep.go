package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/perf"
	"github.com/quatral/moodswing/signal"
)

// SweepParams spans the parameter grid: the Cartesian product of leverage
// levels and threshold pairs, filtered to low < high.
type SweepParams struct {
	Leverages      []float64
	LowThresholds  []float64
	HighThresholds []float64

	// Workers bounds sweep parallelism; 0 means 4.
	Workers int
}

// SweepRow is one ranked sweep result.
type SweepRow struct {
	Asset         string
	Mode          config.Mode
	LowThreshold  float64
	HighThreshold float64
	Leverage      float64

	Summary      perf.Summary
	FinalBalance float64
	Bankrupt     bool
	Err          string
}

// Combinations expands the grid against a base config. Pairs with
// low >= high are dropped rather than rejected, so callers can pass
// overlapping ranges.
func (p SweepParams) Combinations(base config.StrategyConfig) []config.StrategyConfig {
	var out []config.StrategyConfig
	for _, lev := range p.Leverages {
		for _, low := range p.LowThresholds {
			for _, high := range p.HighThresholds {
				if low >= high {
					continue
				}
				cfg := base
				cfg.Leverage = lev
				cfg.LowThreshold = low
				cfg.HighThreshold = high
				out = append(out, cfg)
			}
		}
	}
	return out
}

// RunSweep replays the same record stream once per combination, each run on
// its own engine and ledger with no shared mutable state. A failing
// combination is reported in its row and never aborts the sweep. Rows come
// back ranked by total return, ties broken by Sharpe.
func RunSweep(ctx context.Context, records []signal.Record, base config.StrategyConfig,
	params SweepParams, startingCash float64, log logger.Logger) ([]SweepRow, error) {

	if log == nil {
		log = logger.NewNop()
	}
	combos := params.Combinations(base)
	if len(combos) == 0 {
		return nil, fmt.Errorf("sweep grid is empty")
	}

	workers := params.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(combos) {
		workers = len(combos)
	}

	jobs := make(chan config.StrategyConfig)
	rows := make([]SweepRow, 0, len(combos))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				row := runOne(records, cfg, startingCash, log)
				mu.Lock()
				rows = append(rows, row)
				mu.Unlock()
			}
		}()
	}

	for _, cfg := range combos {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- cfg:
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Summary.TotalReturn != rows[j].Summary.TotalReturn {
			return rows[i].Summary.TotalReturn > rows[j].Summary.TotalReturn
		}
		if rows[i].Summary.Sharpe != rows[j].Summary.Sharpe {
			return rows[i].Summary.Sharpe > rows[j].Summary.Sharpe
		}
		// Deterministic order for equal performance.
		if rows[i].Leverage != rows[j].Leverage {
			return rows[i].Leverage < rows[j].Leverage
		}
		if rows[i].LowThreshold != rows[j].LowThreshold {
			return rows[i].LowThreshold < rows[j].LowThreshold
		}
		return rows[i].HighThreshold < rows[j].HighThreshold
	})
	return rows, nil
}

func runOne(records []signal.Record, cfg config.StrategyConfig, startingCash float64, log logger.Logger) SweepRow {
	row := SweepRow{
		Asset:         cfg.Asset,
		Mode:          cfg.Mode,
		LowThreshold:  cfg.LowThreshold,
		HighThreshold: cfg.HighThreshold,
		Leverage:      cfg.Leverage,
	}

	eng, err := NewEngine(cfg, logger.NewNop())
	if err != nil {
		row.Err = err.Error()
		log.Warn("sweep combination rejected", logger.Err(err))
		return row
	}
	res, err := eng.Run(records, startingCash)
	if err != nil {
		row.Err = err.Error()
		log.Warn("sweep combination failed",
			logger.Float64("leverage", cfg.Leverage),
			logger.Float64("low", cfg.LowThreshold),
			logger.Float64("high", cfg.HighThreshold),
			logger.Err(err),
		)
		return row
	}
	row.Summary = res.Summary
	row.FinalBalance = res.FinalBalance
	row.Bankrupt = res.Bankrupt
	return row
}
