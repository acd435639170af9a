package types

import "time"

// Side is the direction of a perpetual-futures position. None is the zero
// value so a zero Position is flat without any construction step.
type Side string

const (
	None  Side = ""
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// String renders None as "NONE" for logs and labels.
func (s Side) String() string {
	if s == None {
		return "NONE"
	}
	return string(s)
}

// Opposite returns the flipped side; None stays None.
func (s Side) Opposite() Side {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	}
	return None
}

// MarketSample is one observation of the sentiment feed: a price and the raw
// sentiment index at a candle boundary, plus the smoothed value once the
// smoother has seen it. Samples arrive in strictly increasing timestamp
// order in both backtest and live mode.
type MarketSample struct {
	Timestamp time.Time
	Price     float64
	RawSignal float64
	Smoothed  float64
}

// TradeAction labels a ledger state transition.
type TradeAction string

const (
	ActionOpen      TradeAction = "OPEN"
	ActionClose     TradeAction = "CLOSE"
	ActionLiquidate TradeAction = "LIQUIDATION"
)

// TradeRecord is one append-only entry in the ledger's trade history.
type TradeRecord struct {
	Timestamp    time.Time   `json:"timestamp"`
	Action       TradeAction `json:"action"`
	Side         Side        `json:"side"`
	Price        float64     `json:"price"`
	Signal       float64     `json:"signal"`
	Size         float64     `json:"size"`
	PnL          float64     `json:"pnl"`
	Fees         float64     `json:"fees"`
	BalanceAfter float64     `json:"balanceAfter"`
	Reason       string      `json:"reason,omitempty"`
}

// EquityPoint is one mark-to-market equity observation, tagged with the side
// held at that sample so time-in-side can be derived later.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Side      Side
}
