// Package exchange abstracts the trading venue behind a small gateway
// interface. The live loop talks only to this interface; the paper venue and
// the Binance USD-M futures venue implement it.
package exchange

import (
	"context"

	"github.com/quatral/moodswing/types"
)

// PositionInfo is the venue's view of the current position. Size is the
// committed margin in quote currency, matching the ledger's convention.
type PositionInfo struct {
	Side       types.Side
	Size       float64
	EntryPrice float64
	Leverage   float64
}

// Open reports whether the venue holds a position.
func (p PositionInfo) Open() bool { return p.Side != types.None && p.Size != 0 }

// TxRef identifies a submitted order on the venue.
type TxRef struct {
	ClientOrderID string
	VenueOrderID  string
}

// Gateway is the venue contract. All calls take a context and may block on
// network I/O; implementations must be safe to call from a single loop
// goroutine (no internal concurrency is required of them).
type Gateway interface {
	// Initialize prepares the venue session: credentials check, leverage
	// and margin mode on real venues. Called once before the first cycle.
	Initialize(ctx context.Context) error

	// GetPosition returns the venue's current position, or a flat
	// PositionInfo when none is open.
	GetPosition(ctx context.Context) (PositionInfo, error)

	// GetCollateral returns free quote-currency collateral.
	GetCollateral(ctx context.Context) (float64, error)

	// OpenPosition commits notional quote currency at market in the given
	// direction. clientID makes the submission idempotent on venues that
	// support client order IDs.
	OpenPosition(ctx context.Context, side types.Side, notional, price float64, clientID string) (TxRef, error)

	// ClosePosition flattens the current position at market.
	ClosePosition(ctx context.Context, price float64, clientID string) (TxRef, error)

	// SettlePnL triggers funding/PnL settlement on venues that expose it.
	// Venues that settle automatically return nil.
	SettlePnL(ctx context.Context) error

	// Shutdown releases the session. The position is left as-is.
	Shutdown(ctx context.Context) error
}
