// Package live runs the strategy against a real venue. Each candle drives
// one cycle through a fixed phase sequence: reconcile against the exchange,
// decide from the smoothed signal, execute any transition, settle. The
// exchange is always the source of truth for position and collateral; the
// local ledger mirrors it and carries the trade history.
package live

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/exchange"
	"github.com/quatral/moodswing/ledger"
	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/metrics"
	"github.com/quatral/moodswing/risk"
	"github.com/quatral/moodswing/signal"
	"github.com/quatral/moodswing/store"
	"github.com/quatral/moodswing/strategy"
	"github.com/quatral/moodswing/types"
)

// Phase is the live loop's current stage, persisted with the state snapshot
// so an operator can see where a crashed loop stopped.
type Phase string

const (
	PhaseAwaitingCandle Phase = "AWAITING_CANDLE"
	PhaseReconciling    Phase = "RECONCILING"
	PhaseDeciding       Phase = "DECIDING"
	PhaseExecuting      Phase = "EXECUTING"
	PhaseSettling       Phase = "SETTLING"
)

// Loop is the live trading loop. Run drives it; Reload swaps the config
// snapshot between cycles. All other state is owned by the Run goroutine.
type Loop struct {
	cfg    atomic.Pointer[config.Config]
	gw     exchange.Gateway
	sub    *exchange.Submitter
	feed   signal.Feed
	states *store.StateStore
	log    logger.Logger

	// Advisory indicators; never part of the decision path.
	Advisor *Advisor

	led      *ledger.Ledger
	sm       *signal.Smoother
	smWindow int

	phase         Phase
	lastProcessed time.Time
	lastReason    string
}

func NewLoop(cfg config.Config, gw exchange.Gateway, feed signal.Feed, states *store.StateStore, log logger.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Live.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	l := &Loop{
		gw:       gw,
		feed:     feed,
		states:   states,
		log:      log,
		led:      ledger.New(cfg.Strategy, cfg.InitialBalance),
		sm:       signal.NewSmoother(cfg.Strategy.SmoothingWindow),
		smWindow: cfg.Strategy.SmoothingWindow,
		phase:    PhaseAwaitingCandle,
	}
	l.cfg.Store(&cfg)
	l.sub = exchange.NewSubmitter(gw, cfg.Strategy.Asset,
		cfg.Live.MaxOrderRetries, cfg.Live.RetryBaseDelay, cfg.Live.MinOrderSpacing, log)

	// Resume from the durable snapshot if one exists.
	var st store.LiveState
	if states != nil {
		var err error
		st, err = states.Load()
		if err != nil {
			return nil, err
		}
	}
	if !st.LastProcessed.IsZero() {
		l.lastProcessed = st.LastProcessed
		l.lastReason = st.LastReason
		l.led.SyncPosition(st.Position)
		if st.Cash > 0 {
			l.led.SyncCash(st.Cash)
		}
		log.Info("resumed from persisted state",
			logger.Time("lastProcessed", st.LastProcessed),
			logger.String("side", st.Position.Side.String()),
		)
	}
	return l, nil
}

// Reload validates and swaps in a new config snapshot. The running cycle
// finishes under the old snapshot; the next cycle sees the new one.
func (l *Loop) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Live.Validate(); err != nil {
		return err
	}
	l.cfg.Store(&cfg)
	l.log.Info("configuration reloaded",
		logger.Float64("leverage", cfg.Strategy.Leverage),
		logger.Float64("low", cfg.Strategy.LowThreshold),
		logger.Float64("high", cfg.Strategy.HighThreshold),
	)
	return nil
}

// Run drives cycles until the context is cancelled. An in-flight cycle
// completes before shutdown; no new cycle starts afterwards.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.gw.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.gw.Shutdown(sctx); err != nil {
			l.log.Warn("gateway shutdown failed", logger.Err(err))
		}
	}()

	l.log.Info("live loop started",
		logger.String("asset", l.cfg.Load().Strategy.Asset),
		logger.String("venue", l.cfg.Load().Live.Venue),
	)

	for {
		l.setPhase(PhaseAwaitingCandle)
		rec, err := l.awaitSample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("live loop stopping")
				return nil
			}
			return err
		}
		l.runCycle(ctx, rec)
	}
}

// awaitSample polls the feed until a record for an unprocessed candle
// arrives. Timestamps are normalized to the candle boundary so a feed that
// stamps mid-candle cannot produce duplicate cycles.
func (l *Loop) awaitSample(ctx context.Context) (signal.Record, error) {
	cfg := l.cfg.Load()

	// No candle can close before the previous boundary plus one period, so
	// sleep straight through to it and only then start polling.
	if wait := untilNextCandle(l.lastProcessed, cfg.Live.CandlePeriod, time.Now()); wait > 0 {
		select {
		case <-ctx.Done():
			return signal.Record{}, ctx.Err()
		case <-time.After(wait):
		}
	}

	ticker := time.NewTicker(cfg.Live.PollInterval)
	defer ticker.Stop()

	for {
		rec, err := l.feed.Latest(ctx)
		if err != nil {
			l.log.Warn("feed poll failed", logger.Err(err))
			metrics.CyclesSkipped.WithLabelValues("feed_error").Inc()
		} else {
			rec.Timestamp = rec.Timestamp.Truncate(cfg.Live.CandlePeriod)
			if rec.Timestamp.After(l.lastProcessed) {
				return rec, nil
			}
			// Same candle seen again: drop it, never reprocess.
			metrics.CyclesSkipped.WithLabelValues("duplicate").Inc()
		}

		select {
		case <-ctx.Done():
			return signal.Record{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// untilNextCandle returns how long to wait from now before the candle after
// lastProcessed can exist. Zero or negative means poll immediately, which is
// also the answer when no candle has been processed yet.
func untilNextCandle(lastProcessed time.Time, period time.Duration, now time.Time) time.Duration {
	if lastProcessed.IsZero() {
		return 0
	}
	return lastProcessed.Add(period).Sub(now)
}

// runCycle processes one candle. Reconciliation failures leave the candle
// unprocessed so the next poll retries it; failures after the smoother has
// consumed the sample mark the candle processed and skip only the trade.
func (l *Loop) runCycle(ctx context.Context, rec signal.Record) {
	cfg := *l.cfg.Load()
	if cfg.Strategy.SmoothingWindow != l.smWindow {
		l.smWindow = cfg.Strategy.SmoothingWindow
		l.sm = signal.NewSmoother(l.smWindow)
		l.log.Info("smoothing window changed, smoother reset",
			logger.Int("window", l.smWindow))
	}

	l.setPhase(PhaseReconciling)
	if err := l.reconcile(ctx); err != nil {
		l.log.Warn("reconciliation failed, candle will be retried", logger.Err(err))
		metrics.CyclesSkipped.WithLabelValues("reconcile_error").Inc()
		return
	}

	l.setPhase(PhaseDeciding)
	smoothed := l.sm.Push(rec.Sentiment)
	metrics.SmoothedSignal.Set(smoothed)
	l.led.MarkToMarket(rec.Price)
	metrics.EquityGauge.Set(l.led.Equity())

	if l.led.CheckLiquidation(rec.Price, rec.Timestamp, smoothed) {
		metrics.Liquidations.Inc()
		l.log.Warn("margin exhausted, position liquidated",
			logger.Float64("price", rec.Price),
			logger.Float64("cash", l.led.Cash()),
		)
		// Flatten the venue to match; a failure here is corrected by the
		// next reconcile.
		if _, err := l.sub.Close(ctx, rec.Price); err != nil {
			l.log.Error("venue close after liquidation failed", logger.Err(err))
		}
		l.persist()
	}

	decision := strategy.Decide(smoothed, cfg.Strategy)
	metrics.Decisions.WithLabelValues(cfg.Strategy.Asset, decision.Target.String()).Inc()
	l.lastReason = decision.Reason
	l.Advisor.Observe(rec.Price)

	l.setPhase(PhaseExecuting)
	if err := l.execute(ctx, cfg.Strategy, decision, rec, smoothed); err != nil {
		l.log.Error("execution failed, no trade this candle", logger.Err(err))
		metrics.CyclesSkipped.WithLabelValues("execution_error").Inc()
	}

	l.setPhase(PhaseSettling)
	if err := l.gw.SettlePnL(ctx); err != nil && !exchange.IsAlreadySettled(err) {
		// Best effort: settlement lag corrects itself on the next cycle.
		l.log.Warn("settlement failed", logger.Err(err))
	}

	l.lastProcessed = rec.Timestamp
	l.persist()

	l.log.Info("cycle complete",
		logger.Time("candle", rec.Timestamp),
		logger.Float64("price", rec.Price),
		logger.Float64("smoothed", smoothed),
		logger.String("side", l.led.Position().Side.String()),
		logger.Float64("equity", l.led.Equity()),
	)
}

// reconcile pulls position and collateral from the venue and overwrites the
// local view. A position that vanished on the venue side was closed
// externally (manual intervention or venue liquidation) and is logged as
// such.
func (l *Loop) reconcile(ctx context.Context) error {
	venuePos, err := l.gw.GetPosition(ctx)
	if err != nil {
		return err
	}
	cash, err := l.gw.GetCollateral(ctx)
	if err != nil {
		return err
	}

	local := l.led.Position()
	switch {
	case local.Open() && !venuePos.Open():
		l.log.Warn("position closed externally, adopting venue state",
			logger.String("localSide", local.Side.String()),
			logger.Float64("localSize", local.Size),
		)
		metrics.Liquidations.Inc()
		l.led.SyncPosition(ledger.Position{})

	case venuePos.Open() && sameExposure(local, venuePos):
		// Venue agrees; keep locally accrued funding and marks.

	default:
		if venuePos.Open() {
			l.led.SyncPosition(ledger.Position{
				Side:       venuePos.Side,
				Size:       venuePos.Size,
				EntryPrice: venuePos.EntryPrice,
				Leverage:   venuePos.Leverage,
				EntryTime:  time.Now().UTC(),
			})
			if !local.Open() {
				l.log.Warn("position opened externally, adopting venue state",
					logger.String("side", venuePos.Side.String()),
					logger.Float64("size", venuePos.Size),
				)
			}
		} else {
			l.led.SyncPosition(ledger.Position{})
		}
	}

	l.led.SyncCash(cash)
	return nil
}

// sameExposure reports whether the local and venue positions describe the
// same trade, tolerating float drift in size.
func sameExposure(local ledger.Position, venue exchange.PositionInfo) bool {
	if local.Side != venue.Side {
		return false
	}
	if local.Size == 0 {
		return venue.Size == 0
	}
	return math.Abs(local.Size-venue.Size)/local.Size < 0.01
}

// execute performs the voluntary transition, venue first, ledger second. A
// failed close leaves everything untouched; a failed reopen after a
// successful close leaves the account flat, which the next reconcile
// confirms.
func (l *Loop) execute(ctx context.Context, cfg config.StrategyConfig, d strategy.Decision, rec signal.Record, smoothed float64) error {
	pos := l.led.Position()

	switch {
	case pos.Open() && d.Trade && d.Target != pos.Side:
		if _, err := l.sub.Close(ctx, rec.Price); err != nil {
			return err
		}
		if err := l.led.Close(rec.Price, rec.Timestamp, smoothed, d.Reason); err != nil {
			return err
		}
		l.persist()

		// Settle the realized PnL of the closed leg before the margin for
		// the reopen is computed; a settlement lag here would under-size
		// the new position.
		if err := l.gw.SettlePnL(ctx); err != nil && !exchange.IsAlreadySettled(err) {
			l.log.Warn("settlement before flip reopen failed", logger.Err(err))
		}

		notional := risk.Notional(l.led.Cash(), cfg.MaxPositionRatio, cfg.MinOpenBalance)
		if notional <= 0 {
			l.log.Warn("flip reopen skipped: insufficient collateral",
				logger.Float64("cash", l.led.Cash()))
			return nil
		}
		if _, err := l.sub.Open(ctx, d.Target, notional, rec.Price); err != nil {
			return err
		}
		if err := l.led.Open(d.Target, notional, rec.Price, rec.Timestamp, smoothed, d.Reason); err != nil {
			return err
		}
		l.persist()

	case !pos.Open() && d.Trade:
		notional := risk.Notional(l.led.Cash(), cfg.MaxPositionRatio, cfg.MinOpenBalance)
		if notional <= 0 {
			return nil
		}
		if _, err := l.sub.Open(ctx, d.Target, notional, rec.Price); err != nil {
			return err
		}
		if err := l.led.Open(d.Target, notional, rec.Price, rec.Timestamp, smoothed, d.Reason); err != nil {
			return err
		}
		l.persist()
	}
	return nil
}

func (l *Loop) setPhase(p Phase) {
	l.phase = p
	l.persist()
}

func (l *Loop) persist() {
	if l.states == nil {
		return
	}
	err := l.states.Save(store.LiveState{
		LastProcessed: l.lastProcessed,
		Position:      l.led.Position(),
		Cash:          l.led.Cash(),
		Phase:         string(l.phase),
		LastReason:    l.lastReason,
	})
	if err != nil {
		l.log.Error("state persistence failed", logger.Err(err))
	}
}

// Ledger exposes the loop's ledger for inspection.
func (l *Loop) Ledger() *ledger.Ledger { return l.led }

// Records returns the trade history accumulated this session.
func (l *Loop) Records() []types.TradeRecord { return l.led.Records() }
