package live

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/exchange"
	"github.com/quatral/moodswing/ledger"
	"github.com/quatral/moodswing/signal"
	"github.com/quatral/moodswing/store"
	"github.com/quatral/moodswing/testutils"
	"github.com/quatral/moodswing/types"
)

func liveCfg(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Strategy: config.StrategyConfig{
			Asset:                   "BTCUSDT",
			Mode:                    config.Momentum,
			LowThreshold:            30,
			HighThreshold:           70,
			SmoothingWindow:         1,
			Leverage:                2,
			MaxPositionRatio:        0.9,
			FeeRate:                 0.0005,
			LiquidationLossFraction: 0.95,
		},
		Live: config.LiveConfig{
			Venue:           "paper",
			CandlePeriod:    time.Hour,
			PollInterval:    time.Millisecond,
			MaxOrderRetries: 2,
			RetryBaseDelay:  time.Millisecond,
			StatePath:       filepath.Join(t.TempDir(), "state.json"),
		},
		InitialBalance: 1000,
	}
}

func newTestLoop(t *testing.T, gw exchange.Gateway) *Loop {
	t.Helper()
	cfg := liveCfg(t)
	l, err := NewLoop(cfg, gw, &signal.SliceFeed{}, store.NewStateStore(cfg.Live.StatePath), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	return l
}

func candle(hour int, price, sentiment float64) signal.Record {
	return signal.Record{
		Timestamp: time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC),
		Price:     price,
		Sentiment: sentiment,
	}
}

func TestCycleOpensLongOnGreed(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	l := newTestLoop(t, gw)

	l.runCycle(context.Background(), candle(0, 50000, 80))

	orders := gw.OrderCalls()
	if len(orders) != 1 || orders[0].Method != "OpenPosition" || orders[0].Side != types.Long {
		t.Fatalf("expected a single long open, got %+v", orders)
	}
	if orders[0].ClientID == "" {
		t.Fatal("order submitted without a client ID")
	}
	if got := l.Ledger().Position().Side; got != types.Long {
		t.Fatalf("ledger side = %s, want LONG", got)
	}
	if !l.lastProcessed.Equal(candle(0, 0, 0).Timestamp) {
		t.Fatalf("lastProcessed = %v", l.lastProcessed)
	}
}

func TestFlipClosesBeforeOpening(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	l := newTestLoop(t, gw)

	l.runCycle(context.Background(), candle(0, 50000, 80)) // open long
	l.runCycle(context.Background(), candle(1, 50000, 20)) // flip short

	orders := gw.OrderCalls()
	if len(orders) != 3 {
		t.Fatalf("expected open, close, open; got %+v", orders)
	}
	if orders[1].Method != "ClosePosition" {
		t.Fatalf("second order should close, got %+v", orders[1])
	}
	if orders[2].Method != "OpenPosition" || orders[2].Side != types.Short {
		t.Fatalf("third order should open short, got %+v", orders[2])
	}
	if got := l.Ledger().Position().Side; got != types.Short {
		t.Fatalf("ledger side = %s, want SHORT", got)
	}
}

func TestFlipSettlesBetweenCloseAndReopen(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	l := newTestLoop(t, gw)

	l.runCycle(context.Background(), candle(0, 50000, 80)) // open long
	l.runCycle(context.Background(), candle(1, 50000, 20)) // flip short

	// The realized PnL of the closed leg must be settled before the reopen
	// sizes the new position.
	closeIdx, settleIdx, reopenIdx := -1, -1, -1
	for i, c := range gw.Calls() {
		switch {
		case c.Method == "ClosePosition" && closeIdx < 0:
			closeIdx = i
		case c.Method == "SettlePnL" && closeIdx >= 0 && settleIdx < 0:
			settleIdx = i
		case c.Method == "OpenPosition" && c.Side == types.Short && reopenIdx < 0:
			reopenIdx = i
		}
	}
	if closeIdx < 0 || settleIdx < 0 || reopenIdx < 0 {
		t.Fatalf("flip legs missing: %+v", gw.Calls())
	}
	if settleIdx > reopenIdx {
		t.Fatalf("settle at %d came after reopen at %d, want close, settle, reopen", settleIdx, reopenIdx)
	}
}

func TestLiquidationFlattensVenuePosition(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	l := newTestLoop(t, gw)

	l.runCycle(context.Background(), candle(0, 50000, 80)) // open long at 2x

	// A 50% crash at 2x leverage blows past the liquidation bound while the
	// signal sits in the hold zone, so only the forced close can fire.
	l.runCycle(context.Background(), candle(1, 25000, 50))

	if l.Ledger().Position().Open() {
		t.Fatal("position must be force-closed past the liquidation bound")
	}
	recs := l.Records()
	if len(recs) == 0 || recs[len(recs)-1].Action != types.ActionLiquidate {
		t.Fatalf("expected a liquidation record, got %+v", recs)
	}
	if gw.Pos.Open() {
		t.Fatal("venue position must be flattened after a liquidation")
	}
	orders := gw.OrderCalls()
	if last := orders[len(orders)-1]; last.Method != "ClosePosition" {
		t.Fatalf("expected a venue close after the liquidation, got %+v", orders)
	}
}

func TestDuplicateCandleIsDiscarded(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	cfg := liveCfg(t)
	feed := &signal.SliceFeed{Records: []signal.Record{
		candle(0, 50000, 80),
		candle(0, 50100, 85), // same candle, later poll
		candle(1, 50200, 82),
	}}
	l, err := NewLoop(cfg, gw, feed, store.NewStateStore(cfg.Live.StatePath), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	ctx := context.Background()

	first, err := l.awaitSample(ctx)
	if err != nil {
		t.Fatalf("awaitSample failed: %v", err)
	}
	l.runCycle(ctx, first)
	ordersAfterFirst := len(gw.OrderCalls())

	second, err := l.awaitSample(ctx)
	if err != nil {
		t.Fatalf("awaitSample failed: %v", err)
	}
	// The hour-0 resample must be skipped entirely.
	if second.Timestamp.Hour() != 1 {
		t.Fatalf("second sample = %v, want the hour-1 candle", second.Timestamp)
	}
	// Same target side, so holding produces no extra orders either way;
	// what matters is the duplicate never reached the cycle.
	if len(gw.OrderCalls()) != ordersAfterFirst {
		t.Fatal("duplicate candle triggered venue calls")
	}
}

func TestWaitUntilNextCandleBoundary(t *testing.T) {
	last := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// Mid-candle the wait covers exactly the remainder of the period.
	if got := untilNextCandle(last, time.Hour, last.Add(20*time.Minute)); got != 40*time.Minute {
		t.Fatalf("wait = %v, want 40m", got)
	}
	// Past the boundary there is nothing to wait for.
	if got := untilNextCandle(last, time.Hour, last.Add(90*time.Minute)); got > 0 {
		t.Fatalf("wait past the boundary = %v, want <= 0", got)
	}
	// Before the first candle the loop polls immediately.
	if got := untilNextCandle(time.Time{}, time.Hour, last); got != 0 {
		t.Fatalf("wait with no prior candle = %v, want 0", got)
	}
}

func TestReconcileAdoptsVenueTruth(t *testing.T) {
	gw := testutils.NewMockGateway(500)
	l := newTestLoop(t, gw)

	// Local believes it is long, the venue is flat: external close wins.
	l.Ledger().SyncPosition(ledger.Position{
		Side: types.Long, Size: 900, EntryPrice: 50000, Leverage: 2,
	})
	if err := l.reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if l.Ledger().Position().Open() {
		t.Fatal("local position should be cleared when venue is flat")
	}
	if l.Ledger().Cash() != 500 {
		t.Fatalf("cash = %v, want venue collateral 500", l.Ledger().Cash())
	}

	// Venue now reports a short the loop never placed: adopt it.
	gw.Pos = exchange.PositionInfo{Side: types.Short, Size: 400, EntryPrice: 51000, Leverage: 2}
	if err := l.reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	pos := l.Ledger().Position()
	if pos.Side != types.Short || pos.Size != 400 {
		t.Fatalf("position = %+v, want venue short 400", pos)
	}
}

func TestFatalOpenLeavesLedgerUntouched(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	gw.Errs["OpenPosition"] = &exchange.FatalError{Err: errors.New("rejected")}
	l := newTestLoop(t, gw)

	l.runCycle(context.Background(), candle(0, 50000, 80))

	if l.Ledger().Position().Open() {
		t.Fatal("ledger mutated despite venue rejection")
	}
	if len(l.Records()) != 0 {
		t.Fatalf("trade records written despite rejection: %+v", l.Records())
	}
	// The candle is still consumed; the next cycle moves on.
	if l.lastProcessed.IsZero() {
		t.Fatal("failed execution must not stall the candle clock")
	}
}

func TestFailedCloseAbortsFlip(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	l := newTestLoop(t, gw)
	l.runCycle(context.Background(), candle(0, 50000, 80))

	gw.Errs["ClosePosition"] = &exchange.FatalError{Err: errors.New("rejected")}
	l.runCycle(context.Background(), candle(1, 50000, 20))

	// Close failed, so the long must survive locally and on the venue.
	if got := l.Ledger().Position().Side; got != types.Long {
		t.Fatalf("ledger side = %s, want LONG preserved", got)
	}
	for _, c := range gw.OrderCalls() {
		if c.Method == "OpenPosition" && c.Side == types.Short {
			t.Fatal("short opened despite failed close")
		}
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	cfg := liveCfg(t)
	states := store.NewStateStore(cfg.Live.StatePath)

	l, err := NewLoop(cfg, gw, &signal.SliceFeed{}, states, testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	l.runCycle(context.Background(), candle(0, 50000, 80))

	// A second loop over the same state file resumes where the first left off.
	l2, err := NewLoop(cfg, gw, &signal.SliceFeed{}, states, testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("restart NewLoop failed: %v", err)
	}
	if !l2.lastProcessed.Equal(l.lastProcessed) {
		t.Fatalf("restart lastProcessed = %v, want %v", l2.lastProcessed, l.lastProcessed)
	}
	if l2.Ledger().Position().Side != types.Long {
		t.Fatalf("restart position = %+v, want the persisted long", l2.Ledger().Position())
	}
}

func TestReloadSwapsSnapshotAndRejectsInvalid(t *testing.T) {
	gw := testutils.NewMockGateway(1000)
	l := newTestLoop(t, gw)

	bad := liveCfg(t)
	bad.Strategy.LowThreshold = 90
	if err := l.Reload(bad); err == nil {
		t.Fatal("invalid reload must be rejected")
	}

	good := liveCfg(t)
	good.Strategy.HighThreshold = 75
	if err := l.Reload(good); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if l.cfg.Load().Strategy.HighThreshold != 75 {
		t.Fatal("snapshot not swapped")
	}
}
