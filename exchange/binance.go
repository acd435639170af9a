package exchange

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/types"
)

// Binance is the USD-M futures venue. Orders are market orders tagged with
// the caller's client order ID so a retried submission cannot double-fill.
type Binance struct {
	client *futures.Client
	log    logger.Logger

	symbol   string
	leverage int

	quantityPrecision int
}

func NewBinance(cfg config.StrategyConfig, apiKey, apiSecret string, log logger.Logger) *Binance {
	if log == nil {
		log = logger.NewNop()
	}
	return &Binance{
		client:            binance.NewFuturesClient(apiKey, apiSecret),
		log:               log,
		symbol:            cfg.Asset,
		leverage:          int(cfg.Leverage),
		quantityPrecision: 3,
	}
}

// Initialize forces one-way mode, isolated margin and the configured
// leverage, and loads the symbol's quantity precision.
func (b *Binance) Initialize(ctx context.Context) error {
	// Already-set responses are not failures.
	if err := b.client.NewChangePositionModeService().DualSide(false).Do(ctx); err != nil &&
		!strings.Contains(err.Error(), "No need to change") {
		return Classify(err)
	}
	if err := b.client.NewChangeMarginTypeService().
		Symbol(b.symbol).MarginType(futures.MarginTypeIsolated).Do(ctx); err != nil &&
		!strings.Contains(err.Error(), "No need to change") {
		return Classify(err)
	}
	if _, err := b.client.NewChangeLeverageService().
		Symbol(b.symbol).Leverage(b.leverage).Do(ctx); err != nil {
		return Classify(err)
	}

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return Classify(err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == b.symbol {
			b.quantityPrecision = s.QuantityPrecision
			b.log.Info("venue session ready",
				logger.String("symbol", b.symbol),
				logger.Int("leverage", b.leverage),
				logger.Int("quantityPrecision", s.QuantityPrecision),
			)
			return nil
		}
	}
	return &FatalError{Err: errors.New("exchange: symbol not listed: " + b.symbol)}
}

func (b *Binance) GetPosition(ctx context.Context) (PositionInfo, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(b.symbol).Do(ctx)
	if err != nil {
		return PositionInfo{}, Classify(err)
	}
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		lev, _ := strconv.ParseFloat(r.Leverage, 64)
		margin, _ := strconv.ParseFloat(r.IsolatedMargin, 64)

		side := types.Long
		if amt < 0 {
			side = types.Short
		}
		return PositionInfo{
			Side:       side,
			Size:       margin,
			EntryPrice: entry,
			Leverage:   lev,
		}, nil
	}
	return PositionInfo{}, nil
}

func (b *Binance) GetCollateral(ctx context.Context) (float64, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, Classify(err)
	}
	for _, a := range acct.Assets {
		if a.Asset == "USDT" {
			free, err := strconv.ParseFloat(a.AvailableBalance, 64)
			if err != nil {
				return 0, &FatalError{Err: err}
			}
			return free, nil
		}
	}
	return 0, nil
}

func (b *Binance) OpenPosition(ctx context.Context, side types.Side, notional, price float64, clientID string) (TxRef, error) {
	if side == types.None {
		return TxRef{}, &FatalError{Err: errors.New("exchange: cannot open a NONE position")}
	}
	if price <= 0 {
		return TxRef{}, &FatalError{Err: errors.New("exchange: no reference price for sizing")}
	}

	orderSide := futures.SideTypeBuy
	if side == types.Short {
		orderSide = futures.SideTypeSell
	}
	// Base-asset quantity for the leveraged exposure.
	qty := notional * float64(b.leverage) / price
	res, err := b.client.NewCreateOrderService().
		Symbol(b.symbol).
		Side(orderSide).
		Type(futures.OrderTypeMarket).
		Quantity(b.formatQty(qty)).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return TxRef{}, Classify(err)
	}
	return TxRef{
		ClientOrderID: clientID,
		VenueOrderID:  strconv.FormatInt(res.OrderID, 10),
	}, nil
}

func (b *Binance) ClosePosition(ctx context.Context, price float64, clientID string) (TxRef, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(b.symbol).Do(ctx)
	if err != nil {
		return TxRef{}, Classify(err)
	}
	var amt float64
	for _, r := range risks {
		if a, _ := strconv.ParseFloat(r.PositionAmt, 64); a != 0 {
			amt = a
			break
		}
	}
	if amt == 0 {
		return TxRef{}, &FatalError{Err: errors.New("exchange: no open position to close")}
	}

	orderSide := futures.SideTypeSell
	if amt < 0 {
		orderSide = futures.SideTypeBuy
	}
	res, err := b.client.NewCreateOrderService().
		Symbol(b.symbol).
		Side(orderSide).
		Type(futures.OrderTypeMarket).
		Quantity(b.formatQty(math.Abs(amt))).
		ReduceOnly(true).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return TxRef{}, Classify(err)
	}
	return TxRef{
		ClientOrderID: clientID,
		VenueOrderID:  strconv.FormatInt(res.OrderID, 10),
	}, nil
}

// SettlePnL is a no-op on Binance: funding and realized PnL settle into the
// margin balance automatically.
func (b *Binance) SettlePnL(ctx context.Context) error { return nil }

func (b *Binance) Shutdown(ctx context.Context) error { return nil }

func (b *Binance) formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', b.quantityPrecision, 64)
}
