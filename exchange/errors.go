package exchange

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/adshao/go-binance/v2/common"
)

// TransientError marks a venue failure worth retrying: rate limits,
// timeouts, transient server errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "exchange: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a venue failure that retrying cannot fix: bad
// credentials, rejected parameters, unknown symbol.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "exchange: fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Binance error codes that merit a retry.
var transientCodes = map[int64]bool{
	-1000: true, // UNKNOWN internal error
	-1001: true, // DISCONNECTED
	-1003: true, // TOO_MANY_REQUESTS
	-1007: true, // TIMEOUT
	-1021: true, // timestamp outside recvWindow
}

// Classify wraps a raw venue error as transient or fatal. Structured API
// codes are consulted first; bare network errors count as transient;
// everything else is fatal so the loop never retries a rejection blindly.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	var fe *FatalError
	if errors.As(err, &te) || errors.As(err, &fe) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.Code] {
			return &TransientError{Err: err}
		}
		return &FatalError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}

	return &FatalError{Err: err}
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAlreadySettled reports whether a settle call failed only because there
// was nothing to settle. The venue has no structured code for this, so the
// message text is the only discriminator available.
func IsAlreadySettled(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already settled") || strings.Contains(msg, "no need to")
}
