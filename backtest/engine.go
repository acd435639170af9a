// Package backtest replays historical sentiment samples through the shared
// decision and ledger logic. A single run is strictly sequential and
// deterministic; the sweep driver parallelizes across independent runs only.
package backtest

import (
	"time"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/ledger"
	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/perf"
	"github.com/quatral/moodswing/risk"
	"github.com/quatral/moodswing/signal"
	"github.com/quatral/moodswing/strategy"
	"github.com/quatral/moodswing/types"
)

// Result is the full outcome of one deterministic replay.
type Result struct {
	Config  config.StrategyConfig
	Records []types.TradeRecord
	Equity  []types.EquityPoint
	Summary perf.Summary

	// Bankrupt is set when the replay stopped early because cash reached
	// zero. An expected business stop, not a fault.
	Bankrupt bool

	FinalBalance float64
}

// Engine replays one sample stream for one parameter combination.
type Engine struct {
	cfg config.StrategyConfig
	log logger.Logger

	// CandlePeriod drives Sharpe annualization; defaults to daily.
	CandlePeriod time.Duration
}

func NewEngine(cfg config.StrategyConfig, log logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{cfg: cfg, log: log, CandlePeriod: 24 * time.Hour}, nil
}

// Run replays the record stream. The whole series is smoothed up front so a
// replay always starts from fresh smoother state; per sample, in order: mark
// to market, forced-liquidation check, decision, then any voluntary
// transition.
func (e *Engine) Run(records []signal.Record, startingCash float64) (Result, error) {
	led := ledger.New(e.cfg, startingCash)
	samples := signal.ToSamples(records, e.cfg.SmoothingWindow)

	equity := make([]types.EquityPoint, 0, len(samples)+1)
	if len(samples) > 0 {
		equity = append(equity, types.EquityPoint{
			Timestamp: samples[0].Timestamp,
			Equity:    startingCash,
			Side:      types.None,
		})
	}

	res := Result{Config: e.cfg}
	for _, s := range samples {
		led.MarkToMarket(s.Price)
		led.CheckLiquidation(s.Price, s.Timestamp, s.Smoothed)

		decision := strategy.Decide(s.Smoothed, e.cfg)
		if err := e.apply(led, decision, s); err != nil {
			return res, err
		}

		equity = append(equity, types.EquityPoint{
			Timestamp: s.Timestamp,
			Equity:    led.Equity(),
			Side:      led.Position().Side,
		})

		if led.Cash() <= 0 && !led.Position().Open() {
			res.Bankrupt = true
			e.log.Warn("backtest stopped: balance exhausted",
				logger.Time("at", s.Timestamp),
				logger.Float64("cash", led.Cash()),
			)
			break
		}
	}

	res.Records = led.Records()
	res.Equity = equity
	res.FinalBalance = led.Cash()
	res.Summary = perf.Compute(res.Records, equity, perf.PeriodsPerYear(e.CandlePeriod))
	return res, nil
}

// apply performs the voluntary transition implied by the decision, if any.
// Insufficient funds skips the open for this cycle; every other ledger
// error is a programming fault and aborts the run.
func (e *Engine) apply(led *ledger.Ledger, d strategy.Decision, s types.MarketSample) error {
	pos := led.Position()

	switch {
	case pos.Open() && d.Trade && d.Target != pos.Side:
		err := led.Flip(d.Target, s.Price, s.Timestamp, s.Smoothed, d.Reason)
		if err == ledger.ErrInsufficientFunds {
			// Closed but too broke to reopen; stay flat this cycle.
			return nil
		}
		return err

	case !pos.Open() && d.Trade:
		notional := risk.Notional(led.Cash(), e.cfg.MaxPositionRatio, e.cfg.MinOpenBalance)
		err := led.Open(d.Target, notional, s.Price, s.Timestamp, s.Smoothed, d.Reason)
		if err == ledger.ErrInsufficientFunds {
			return nil
		}
		return err
	}
	return nil
}
