// Package ledger owns the position and account balance and applies every
// state transition of the financial model: open, mark-to-market, forced
// liquidation, close and flip. Backtest and live share this code, so all
// leveraged PnL, funding and fee arithmetic lives here and nowhere else.
package ledger

import (
	"errors"
	"time"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/risk"
	"github.com/quatral/moodswing/types"
)

var (
	// ErrPositionOpen is returned by Open when a position already exists.
	ErrPositionOpen = errors.New("ledger: position already open")
	// ErrNoPosition is returned by Close when nothing is open.
	ErrNoPosition = errors.New("ledger: no open position")
	// ErrInsufficientFunds marks an open skipped because funding it would
	// breach the minimum opening balance. Recoverable: the engine simply
	// tries again on a later cycle.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds to open")
)

// Position is the current exposure. Size is the margin committed in quote
// currency; the invariant Size == 0 <=> Side == None holds at every sample.
type Position struct {
	Side           types.Side `json:"side"`
	Size           float64    `json:"size"`
	EntryPrice     float64    `json:"entryPrice"`
	Leverage       float64    `json:"leverage"`
	EntryTime      time.Time  `json:"entryTime"`
	UnrealizedPnL  float64    `json:"unrealizedPnl"`
	AccruedFunding float64    `json:"accruedFunding"`
}

// Open reports whether the position exists.
func (p Position) Open() bool { return p.Side != types.None }

// Ledger applies the financial model for exactly one account. It is not
// safe for concurrent use; every run owns its ledger exclusively.
type Ledger struct {
	cfg config.StrategyConfig

	pos          Position
	cash         float64
	realizedPnL  float64
	feesPaid     float64
	fundingPaid  float64
	peakEquity   float64
	liquidations int

	records []types.TradeRecord
}

// New creates a ledger with the given starting cash. The config snapshot is
// fixed for the ledger's lifetime.
func New(cfg config.StrategyConfig, startingCash float64) *Ledger {
	return &Ledger{
		cfg:        cfg,
		cash:       startingCash,
		peakEquity: startingCash,
	}
}

// Open commits notional quote currency to a new position. The open fee is
// deducted from the notional before sizing, so the margin at risk is
// notional minus fee.
func (l *Ledger) Open(side types.Side, notional, price float64, ts time.Time, signal float64, reason string) error {
	if side == types.None {
		return errors.New("ledger: cannot open a NONE position")
	}
	if l.pos.Open() {
		return ErrPositionOpen
	}
	if notional <= 0 || l.cash-notional < l.cfg.MinOpenBalance {
		return ErrInsufficientFunds
	}

	openFee := notional * l.cfg.FeeRate
	size := notional - openFee
	if size <= 0 {
		return ErrInsufficientFunds
	}

	l.cash -= notional
	l.realizedPnL -= openFee
	l.feesPaid += openFee
	l.pos = Position{
		Side:       side,
		Size:       size,
		EntryPrice: price,
		Leverage:   l.cfg.Leverage,
		EntryTime:  ts,
	}

	l.append(types.TradeRecord{
		Timestamp:    ts,
		Action:       types.ActionOpen,
		Side:         side,
		Price:        price,
		Signal:       signal,
		Size:         size,
		PnL:          -openFee,
		Fees:         openFee,
		BalanceAfter: l.cash,
		Reason:       reason,
	})
	return nil
}

// MarkToMarket refreshes unrealized PnL at the given price and accrues one
// funding period: longs pay, shorts receive. Call once per sample while a
// position is open.
func (l *Ledger) MarkToMarket(price float64) float64 {
	if l.pos.Open() {
		l.pos.UnrealizedPnL = l.pos.Size * l.pos.Leverage * l.priceReturn(price)
		accrual := l.pos.Size * l.pos.Leverage * l.cfg.FundingRatePerPeriod
		if l.pos.Side == types.Short {
			accrual = -accrual
		}
		l.pos.AccruedFunding += accrual
	}
	eq := l.Equity()
	if eq > l.peakEquity {
		l.peakEquity = eq
	}
	return eq
}

// CheckLiquidation fires once the funding-adjusted loss has consumed the
// configured fraction of margin. The venue keeps that fraction; the remnant
// returns to cash and the position is force-reset. Liquidation is an
// expected business event, not an error, so it only reports whether it
// happened.
func (l *Ledger) CheckLiquidation(price float64, ts time.Time, signal float64) bool {
	if !l.pos.Open() || l.pos.Size <= 0 {
		return false
	}
	loss := -(l.pos.UnrealizedPnL - l.pos.AccruedFunding)
	if loss/l.pos.Size < l.cfg.LiquidationLossFraction {
		return false
	}

	forfeit := l.pos.Size * l.cfg.LiquidationLossFraction
	l.cash += l.pos.Size - forfeit
	l.realizedPnL -= forfeit
	l.fundingPaid += l.pos.AccruedFunding
	l.liquidations++

	l.append(types.TradeRecord{
		Timestamp:    ts,
		Action:       types.ActionLiquidate,
		Side:         l.pos.Side,
		Price:        price,
		Signal:       signal,
		Size:         l.pos.Size,
		PnL:          -forfeit,
		BalanceAfter: l.cash,
		Reason:       "loss exceeded liquidation fraction",
	})
	l.pos = Position{}
	return true
}

// Close realizes the position at the given price: unrealized PnL minus
// accrued funding minus the close fee is settled into cash.
func (l *Ledger) Close(price float64, ts time.Time, signal float64, reason string) error {
	if !l.pos.Open() {
		return ErrNoPosition
	}

	unrealized := l.pos.Size * l.pos.Leverage * l.priceReturn(price)
	closeFee := l.pos.Size * l.cfg.FeeRate
	net := unrealized - l.pos.AccruedFunding - closeFee

	l.cash += l.pos.Size + net
	l.realizedPnL += net
	l.feesPaid += closeFee
	l.fundingPaid += l.pos.AccruedFunding

	l.append(types.TradeRecord{
		Timestamp:    ts,
		Action:       types.ActionClose,
		Side:         l.pos.Side,
		Price:        price,
		Signal:       signal,
		Size:         l.pos.Size,
		PnL:          net,
		Fees:         closeFee,
		BalanceAfter: l.cash,
		Reason:       reason,
	})
	l.pos = Position{}

	if eq := l.Equity(); eq > l.peakEquity {
		l.peakEquity = eq
	}
	return nil
}

// Flip closes the current position and opens the opposite one, sized from
// the cash available after the close.
func (l *Ledger) Flip(newSide types.Side, price float64, ts time.Time, signal float64, reason string) error {
	if err := l.Close(price, ts, signal, reason); err != nil {
		return err
	}
	notional := risk.Notional(l.cash, l.cfg.MaxPositionRatio, l.cfg.MinOpenBalance)
	return l.Open(newSide, notional, price, ts, signal, reason)
}

// SyncPosition overwrites the local position with exchange-reported truth.
// Reconciliation always prefers the exchange, so no merge logic exists.
func (l *Ledger) SyncPosition(p Position) {
	if p.Side == types.None || p.Size == 0 {
		l.pos = Position{}
		return
	}
	l.pos = p
}

// SyncCash overwrites the cash balance with exchange-reported collateral.
func (l *Ledger) SyncCash(cash float64) {
	l.cash = cash
	if cash > l.peakEquity {
		l.peakEquity = cash
	}
}

// Equity is cash plus the marked value of any open position.
func (l *Ledger) Equity() float64 {
	if !l.pos.Open() {
		return l.cash
	}
	return l.cash + l.pos.Size + l.pos.UnrealizedPnL - l.pos.AccruedFunding
}

func (l *Ledger) priceReturn(price float64) float64 {
	if l.pos.EntryPrice == 0 {
		return 0
	}
	ret := (price - l.pos.EntryPrice) / l.pos.EntryPrice
	if l.pos.Side == types.Short {
		ret = -ret
	}
	return ret
}

func (l *Ledger) append(r types.TradeRecord) {
	l.records = append(l.records, r)
}

func (l *Ledger) Position() Position   { return l.pos }
func (l *Ledger) Cash() float64        { return l.cash }
func (l *Ledger) RealizedPnL() float64 { return l.realizedPnL }
func (l *Ledger) FeesPaid() float64    { return l.feesPaid }
func (l *Ledger) FundingPaid() float64 { return l.fundingPaid }
func (l *Ledger) PeakEquity() float64  { return l.peakEquity }
func (l *Ledger) Liquidations() int    { return l.liquidations }

// Records returns a copy of the trade history.
func (l *Ledger) Records() []types.TradeRecord {
	out := make([]types.TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}
