// Package perf derives run statistics from a ledger's trade history and the
// per-sample mark-to-market equity curve. Summaries are recomputed wholesale
// from the inputs, never patched incrementally.
package perf

import (
	"math"
	"time"

	"github.com/quatral/moodswing/types"
)

// Summary is the derived performance view of one run.
type Summary struct {
	TotalReturn  float64 `json:"totalReturn"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"winRate"`
	Liquidations int     `json:"liquidations"`

	// Fraction of samples spent in each side.
	TimeLong  float64 `json:"timeLong"`
	TimeShort float64 `json:"timeShort"`
	TimeFlat  float64 `json:"timeFlat"`
}

// PeriodsPerYear derives the Sharpe annualization factor from the feed
// cadence.
func PeriodsPerYear(period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(period)
}

// Compute builds a summary from trade records and the equity curve. The
// curve must include the starting equity as its first point.
func Compute(records []types.TradeRecord, equity []types.EquityPoint, periodsPerYear float64) Summary {
	var s Summary

	wins, closes := 0, 0
	for _, r := range records {
		switch r.Action {
		case types.ActionClose:
			closes++
			if r.PnL > 0 {
				wins++
			}
		case types.ActionLiquidate:
			s.Liquidations++
		}
	}
	s.Trades = closes + s.Liquidations
	if closes > 0 {
		s.WinRate = float64(wins) / float64(closes)
	}

	if len(equity) == 0 {
		return s
	}

	start := equity[0].Equity
	end := equity[len(equity)-1].Equity
	if start > 0 {
		s.TotalReturn = (end - start) / start
	}

	s.MaxDrawdown = maxDrawdown(equity)
	s.Sharpe = sharpe(equity, periodsPerYear)

	long, short, flat := 0, 0, 0
	for _, p := range equity {
		switch p.Side {
		case types.Long:
			long++
		case types.Short:
			short++
		default:
			flat++
		}
	}
	n := float64(len(equity))
	s.TimeLong = float64(long) / n
	s.TimeShort = float64(short) / n
	s.TimeFlat = float64(flat) / n

	return s
}

// maxDrawdown is the worst peak-to-trough decline of the mark-to-market
// equity curve, as a positive fraction of the peak.
func maxDrawdown(equity []types.EquityPoint) float64 {
	peak := equity[0].Equity
	worst := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe is the annualized ratio of mean to sample standard deviation of
// per-period simple returns. Fewer than two returns or zero variance yield
// zero rather than a division blow-up.
func sharpe(equity []types.EquityPoint, periodsPerYear float64) float64 {
	if len(equity) < 3 || periodsPerYear <= 0 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}
