package risk

import "math"

// Notional returns the quote-currency amount to commit to a new position
// given free cash, the configured position ratio and the cash floor that
// must survive the open. Returns 0 when the account cannot fund a position
// without breaching the floor.
func Notional(cash, maxPositionRatio, minOpenBalance float64) float64 {
	if cash <= minOpenBalance || maxPositionRatio <= 0 {
		return 0
	}
	notional := cash * maxPositionRatio
	if cash-notional < minOpenBalance {
		notional = cash - minOpenBalance
	}
	if notional <= 0 {
		return 0
	}
	// Truncate to cents so paper and live venues agree on sizing.
	return math.Floor(notional*100) / 100
}
