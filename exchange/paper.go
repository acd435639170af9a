package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/types"
)

// Paper simulates a venue with perfect market fills and the configured
// taker fee. It applies the same open/close arithmetic as the ledger so
// reconciliation against it is a no-op in the steady state.
type Paper struct {
	cfg  config.StrategyConfig
	log  logger.Logger
	cash float64
	pos  PositionInfo

	seq          int
	lastClientID string
	lastRef      TxRef
}

func NewPaper(cfg config.StrategyConfig, startingCash float64, log logger.Logger) *Paper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Paper{cfg: cfg, log: log, cash: startingCash}
}

func (p *Paper) Initialize(ctx context.Context) error { return nil }

func (p *Paper) GetPosition(ctx context.Context) (PositionInfo, error) {
	return p.pos, nil
}

func (p *Paper) GetCollateral(ctx context.Context) (float64, error) {
	return p.cash, nil
}

func (p *Paper) OpenPosition(ctx context.Context, side types.Side, notional, price float64, clientID string) (TxRef, error) {
	// A repeated client ID is a retry of an already-applied fill.
	if clientID != "" && clientID == p.lastClientID {
		return p.lastRef, nil
	}
	if side == types.None {
		return TxRef{}, &FatalError{Err: errors.New("paper: cannot open a NONE position")}
	}
	if p.pos.Open() {
		return TxRef{}, &FatalError{Err: errors.New("paper: position already open")}
	}
	if notional <= 0 || notional > p.cash {
		return TxRef{}, &FatalError{Err: errors.New("paper: insufficient collateral")}
	}

	fee := notional * p.cfg.FeeRate
	p.cash -= notional
	p.pos = PositionInfo{
		Side:       side,
		Size:       notional - fee,
		EntryPrice: price,
		Leverage:   p.cfg.Leverage,
	}
	ref := p.fill(clientID)
	p.log.Info("paper fill: open",
		logger.String("side", side.String()),
		logger.Float64("size", p.pos.Size),
		logger.Float64("price", price),
	)
	return ref, nil
}

func (p *Paper) ClosePosition(ctx context.Context, price float64, clientID string) (TxRef, error) {
	if clientID != "" && clientID == p.lastClientID {
		return p.lastRef, nil
	}
	if !p.pos.Open() {
		return TxRef{}, &FatalError{Err: errors.New("paper: no open position")}
	}

	ret := (price - p.pos.EntryPrice) / p.pos.EntryPrice
	if p.pos.Side == types.Short {
		ret = -ret
	}
	pnl := p.pos.Size * p.pos.Leverage * ret
	fee := p.pos.Size * p.cfg.FeeRate
	p.cash += p.pos.Size + pnl - fee
	p.pos = PositionInfo{}

	ref := p.fill(clientID)
	p.log.Info("paper fill: close",
		logger.Float64("pnl", pnl-fee),
		logger.Float64("price", price),
	)
	return ref, nil
}

// SettlePnL is a no-op: paper fills settle inline.
func (p *Paper) SettlePnL(ctx context.Context) error { return nil }

func (p *Paper) Shutdown(ctx context.Context) error { return nil }

func (p *Paper) fill(clientID string) TxRef {
	p.seq++
	ref := TxRef{
		ClientOrderID: clientID,
		VenueOrderID:  fmt.Sprintf("paper-%d", p.seq),
	}
	p.lastClientID = clientID
	p.lastRef = ref
	return ref
}
