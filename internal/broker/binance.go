package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"go.uber.org/zap"
)

const orderTimeout = 15 * time.Second

// BinanceBroker places real market orders on the exchange and keeps the same
// local bookkeeping as the paper broker, so summaries and risk checks work
// identically in both modes.
type BinanceBroker struct {
	*PaperBroker
	client *binance.Client
	ctx    context.Context
	logger *logger.Logger
}

// NewBinanceBroker creates a live broker bound to the run's context.
func NewBinanceBroker(
	ctx context.Context,
	client *binance.Client,
	symbol string,
	capitalBase, slippage float64,
	log *logger.Logger,
) *BinanceBroker {
	return &BinanceBroker{
		PaperBroker: NewPaperBroker(symbol, capitalBase, slippage, log),
		client:      client,
		ctx:         ctx,
		logger:      log.Named("live"),
	}
}

// Buy implements Broker. The exchange order goes out first; bookkeeping only
// updates on a successful placement.
func (b *BinanceBroker) Buy(bar types.Bar, amount float64, reason string) error {
	if err := b.placeOrder(binance.SideTypeBuy, amount); err != nil {
		return err
	}

	return b.PaperBroker.Buy(bar, amount, reason)
}

// Sell implements Broker.
func (b *BinanceBroker) Sell(bar types.Bar, amount float64, reason string) error {
	if err := b.placeOrder(binance.SideTypeSell, amount); err != nil {
		return err
	}

	return b.PaperBroker.Sell(bar, amount, reason)
}

// SellAll implements Broker.
func (b *BinanceBroker) SellAll(bar types.Bar, reason string) error {
	position := b.Position()
	if position.IsNone() {
		return errors.New(errors.ErrCodeNoOpenPosition, "sell with no open position")
	}

	return b.Sell(bar, position.Unwrap().Amount, reason)
}

// CancelOpenOrders implements Broker.
func (b *BinanceBroker) CancelOpenOrders() int {
	ctx, cancel := context.WithTimeout(b.ctx, orderTimeout)
	defer cancel()

	open, err := b.client.NewListOpenOrdersService().Symbol(b.symbol).Do(ctx)
	if err != nil || len(open) == 0 {
		return 0
	}

	if _, err := b.client.NewCancelOpenOrdersService().Symbol(b.symbol).Do(ctx); err != nil {
		b.logger.Warn("failed to cancel open orders", zap.Error(err))

		return 0
	}

	return len(open)
}

func (b *BinanceBroker) placeOrder(side binance.SideType, amount float64) error {
	ctx, cancel := context.WithTimeout(b.ctx, orderTimeout)
	defer cancel()

	_, err := b.client.NewCreateOrderService().
		Symbol(b.symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(fmt.Sprintf("%v", amount)).
		Do(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "exchange rejected order", err)
	}

	return nil
}
