package perf

import (
	"math"
	"testing"
	"time"

	"github.com/quatral/moodswing/types"
)

func curve(sides []types.Side, values ...float64) []types.EquityPoint {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.EquityPoint, len(values))
	for i, v := range values {
		side := types.None
		if sides != nil {
			side = sides[i]
		}
		out[i] = types.EquityPoint{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Equity:    v,
			Side:      side,
		}
	}
	return out
}

func TestTotalReturnAndDrawdown(t *testing.T) {
	eq := curve(nil, 1000, 1100, 990, 1210)
	s := Compute(nil, eq, PeriodsPerYear(24*time.Hour))

	if math.Abs(s.TotalReturn-0.21) > 1e-9 {
		t.Fatalf("total return = %v, want 0.21", s.TotalReturn)
	}
	// Peak 1100 to trough 990 is a 10% drawdown.
	if math.Abs(s.MaxDrawdown-0.1) > 1e-9 {
		t.Fatalf("max drawdown = %v, want 0.1", s.MaxDrawdown)
	}
}

func TestDrawdownUsesMarkToMarketNotFinalBalance(t *testing.T) {
	// The run ends above water but dipped hard in the middle; the dip must
	// show up even though realized balance never saw it.
	eq := curve(nil, 1000, 1500, 600, 1600)
	s := Compute(nil, eq, 365)
	if math.Abs(s.MaxDrawdown-0.6) > 1e-9 {
		t.Fatalf("max drawdown = %v, want 0.6", s.MaxDrawdown)
	}
}

func TestSharpeZeroOnFlatCurve(t *testing.T) {
	eq := curve(nil, 1000, 1000, 1000, 1000)
	if s := Compute(nil, eq, 365); s.Sharpe != 0 {
		t.Fatalf("sharpe = %v, want 0 for zero-variance curve", s.Sharpe)
	}
}

func TestSharpeKnownFigure(t *testing.T) {
	// Returns: +10%, -10%. Mean 0, sample stdev sqrt(0.02) -> Sharpe 0.
	eq := curve(nil, 1000, 1100, 990)
	if s := Compute(nil, eq, 365); s.Sharpe != 0 {
		t.Fatalf("sharpe = %v, want 0 for mean-zero returns", s.Sharpe)
	}

	// Steady +1% per period annualizes to a large positive Sharpe... but
	// identical returns have zero variance, so guard kicks in. Perturb one.
	eq = curve(nil, 1000, 1010, 1021, 1030)
	s := Compute(nil, eq, 365)
	if s.Sharpe <= 0 {
		t.Fatalf("sharpe = %v, want positive for a rising curve", s.Sharpe)
	}
}

func TestWinRateAndLiquidationCount(t *testing.T) {
	records := []types.TradeRecord{
		{Action: types.ActionOpen},
		{Action: types.ActionClose, PnL: 50},
		{Action: types.ActionOpen},
		{Action: types.ActionClose, PnL: -20},
		{Action: types.ActionOpen},
		{Action: types.ActionLiquidate, PnL: -95},
	}
	s := Compute(records, nil, 365)
	if s.Trades != 3 {
		t.Fatalf("trades = %d, want 3", s.Trades)
	}
	if math.Abs(s.WinRate-0.5) > 1e-9 {
		t.Fatalf("win rate = %v, want 0.5", s.WinRate)
	}
	if s.Liquidations != 1 {
		t.Fatalf("liquidations = %d, want 1", s.Liquidations)
	}
}

func TestTimeInSideBreakdown(t *testing.T) {
	sides := []types.Side{types.None, types.Long, types.Long, types.Short}
	eq := curve(sides, 1000, 1000, 1010, 1005)
	s := Compute(nil, eq, 365)
	if math.Abs(s.TimeLong-0.5) > 1e-9 || math.Abs(s.TimeShort-0.25) > 1e-9 || math.Abs(s.TimeFlat-0.25) > 1e-9 {
		t.Fatalf("time-in-side = long %v short %v flat %v", s.TimeLong, s.TimeShort, s.TimeFlat)
	}
}

func TestPeriodsPerYear(t *testing.T) {
	if got := PeriodsPerYear(24 * time.Hour); math.Abs(got-365) > 1e-9 {
		t.Fatalf("daily cadence = %v periods/year, want 365", got)
	}
	if got := PeriodsPerYear(time.Hour); math.Abs(got-8760) > 1e-9 {
		t.Fatalf("hourly cadence = %v periods/year, want 8760", got)
	}
}
