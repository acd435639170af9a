package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/metrics"
	"github.com/quatral/moodswing/types"
)

// Submitter wraps a gateway with bounded retries, order spacing and client
// order IDs. Transient failures are retried with a linearly growing delay;
// the same client ID is reused across retries so the venue can deduplicate.
// Fatal failures surface immediately.
type Submitter struct {
	gw      Gateway
	log     logger.Logger
	limiter *rate.Limiter

	asset      string
	maxRetries int
	baseDelay  time.Duration
}

func NewSubmitter(gw Gateway, asset string, maxRetries int, baseDelay, minSpacing time.Duration, log logger.Logger) *Submitter {
	if log == nil {
		log = logger.NewNop()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	return &Submitter{
		gw:         gw,
		log:        log,
		limiter:    rate.NewLimiter(limit, 1),
		asset:      asset,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Open submits a market open through the retry envelope.
func (s *Submitter) Open(ctx context.Context, side types.Side, notional, price float64) (TxRef, error) {
	clientID := uuid.NewString()
	ref, err := s.submit(ctx, "open", func() (TxRef, error) {
		return s.gw.OpenPosition(ctx, side, notional, price, clientID)
	})
	if err == nil {
		metrics.OrdersSubmitted.WithLabelValues(s.asset, "open").Inc()
	}
	return ref, err
}

// Close submits a market close through the retry envelope.
func (s *Submitter) Close(ctx context.Context, price float64) (TxRef, error) {
	clientID := uuid.NewString()
	ref, err := s.submit(ctx, "close", func() (TxRef, error) {
		return s.gw.ClosePosition(ctx, price, clientID)
	})
	if err == nil {
		metrics.OrdersSubmitted.WithLabelValues(s.asset, "close").Inc()
	}
	return ref, err
}

func (s *Submitter) submit(ctx context.Context, kind string, fn func() (TxRef, error)) (TxRef, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return TxRef{}, err
		}

		ref, err := fn()
		if err == nil {
			return ref, nil
		}
		if !IsTransient(err) {
			return TxRef{}, err
		}

		lastErr = err
		if attempt == s.maxRetries {
			break
		}
		metrics.OrderRetries.Inc()
		delay := time.Duration(attempt) * s.baseDelay
		s.log.Warn("order submission failed, retrying",
			logger.String("kind", kind),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
		select {
		case <-ctx.Done():
			return TxRef{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return TxRef{}, lastErr
}
