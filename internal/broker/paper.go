package broker

import (
	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperBroker simulates fills against a cash balance. Backtests and paper
// trading share it; live runs swap in an exchange-backed broker behind the
// same interface. All money arithmetic uses decimals so repeated trims do
// not drift the balance.
type PaperBroker struct {
	symbol       string
	cash         decimal.Decimal
	startingCash decimal.Decimal
	slippage     decimal.Decimal
	position     optional.Option[types.Position]
	realized     decimal.Decimal
	trades       []Trade
	// priorTrades counts fills from earlier attempts of a resumed run. They
	// are part of the trade count but carry no Trade entries here.
	priorTrades int
	logger      *logger.Logger
}

// NewPaperBroker creates a broker with the run's capital base and allowed
// slippage percentage.
func NewPaperBroker(symbol string, capitalBase, slippage float64, log *logger.Logger) *PaperBroker {
	cash := decimal.NewFromFloat(capitalBase)

	return &PaperBroker{
		symbol:       symbol,
		cash:         cash,
		startingCash: cash,
		slippage:     decimal.NewFromFloat(slippage),
		position:     optional.None[types.Position](),
		realized:     decimal.Zero,
		trades:       nil,
		logger:       log,
	}
}

// Buy implements Broker. The fill price is the bar price worsened by the
// allowed slippage.
func (b *PaperBroker) Buy(bar types.Bar, amount float64, reason string) error {
	if amount <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrderSize, "buy amount must be positive, got %f", amount)
	}

	price := decimal.NewFromFloat(bar.Price()).Mul(decimal.NewFromInt(1).Add(b.slippage))
	cost := price.Mul(decimal.NewFromFloat(amount))

	if cost.GreaterThan(b.cash) {
		return errors.Newf(errors.ErrCodeInsufficientCash,
			"insufficient cash for buy: need %s, have %s", cost.String(), b.cash.String())
	}

	b.cash = b.cash.Sub(cost)

	fillPrice, _ := price.Float64()

	if b.position.IsSome() {
		pos := b.position.Unwrap()
		// Weighted-average cost basis across the existing lot and the fill.
		oldValue := decimal.NewFromFloat(pos.CostBasis).Mul(decimal.NewFromFloat(pos.Amount))
		newAmount := pos.Amount + amount
		pos.CostBasis, _ = oldValue.Add(cost).Div(decimal.NewFromFloat(newAmount)).Float64()
		pos.Amount = newAmount
		b.position = optional.Some(pos)
	} else {
		b.position = optional.Some(types.Position{
			Symbol:    b.symbol,
			Amount:    amount,
			CostBasis: fillPrice,
		})
	}

	b.record(bar, types.ActionBuy, amount, fillPrice, reason)

	return nil
}

// Sell implements Broker. Selling more than the held amount closes the
// position rather than going short.
func (b *PaperBroker) Sell(bar types.Bar, amount float64, reason string) error {
	if b.position.IsNone() {
		return errors.New(errors.ErrCodeNoOpenPosition, "sell with no open position")
	}

	pos := b.position.Unwrap()
	if amount > pos.Amount {
		amount = pos.Amount
	}

	if amount <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrderSize, "sell amount must be positive, got %f", amount)
	}

	price := decimal.NewFromFloat(bar.Price()).Mul(decimal.NewFromInt(1).Sub(b.slippage))
	proceeds := price.Mul(decimal.NewFromFloat(amount))

	b.cash = b.cash.Add(proceeds)

	costOfSold := decimal.NewFromFloat(pos.CostBasis).Mul(decimal.NewFromFloat(amount))
	b.realized = b.realized.Add(proceeds.Sub(costOfSold))

	pos.Amount -= amount
	if pos.Amount <= 0 {
		b.position = optional.None[types.Position]()
	} else {
		b.position = optional.Some(pos)
	}

	fillPrice, _ := price.Float64()
	b.record(bar, types.ActionSell, amount, fillPrice, reason)

	return nil
}

// SellAll implements Broker.
func (b *PaperBroker) SellAll(bar types.Bar, reason string) error {
	if b.position.IsNone() {
		return errors.New(errors.ErrCodeNoOpenPosition, "sell with no open position")
	}

	return b.Sell(bar, b.position.Unwrap().Amount, reason)
}

// CancelOpenOrders implements Broker. Paper fills never rest on the book.
func (b *PaperBroker) CancelOpenOrders() int {
	return 0
}

// AdjustStop implements Broker.
func (b *PaperBroker) AdjustStop(stop float64) error {
	if b.position.IsNone() {
		return errors.New(errors.ErrCodeNoOpenPosition, "adjust stop with no open position")
	}

	pos := b.position.Unwrap()
	pos.AdjustedStop = optional.Some(stop)
	b.position = optional.Some(pos)

	return nil
}

// Position implements Broker.
func (b *PaperBroker) Position() optional.Option[types.Position] {
	return b.position
}

// Cash implements Broker.
func (b *PaperBroker) Cash() float64 {
	cash, _ := b.cash.Float64()

	return cash
}

// Trades implements Broker.
func (b *PaperBroker) Trades() []Trade {
	return b.trades
}

// Portfolio implements Broker.
func (b *PaperBroker) Portfolio() Portfolio {
	cash, _ := b.cash.Float64()
	realized, _ := b.realized.Float64()

	return Portfolio{
		Cash:        cash,
		RealizedPnL: realized,
		TradeCount:  b.priorTrades + len(b.trades),
		Position:    b.position,
	}
}

// RestorePortfolio implements Broker.
func (b *PaperBroker) RestorePortfolio(p Portfolio) {
	b.cash = decimal.NewFromFloat(p.Cash)
	b.realized = decimal.NewFromFloat(p.RealizedPnL)
	b.priorTrades = p.TradeCount
	b.position = p.Position
}

// Summary implements Broker.
func (b *PaperBroker) Summary(finalPrice float64) Result {
	value := b.cash
	if b.position.IsSome() {
		pos := b.position.Unwrap()
		value = value.Add(decimal.NewFromFloat(finalPrice).Mul(decimal.NewFromFloat(pos.Amount)))
	}

	endingCash, _ := b.cash.Float64()
	endingValue, _ := value.Float64()
	realized, _ := b.realized.Float64()

	returnPct := 0.0
	if b.startingCash.IsPositive() {
		returnPct, _ = value.Sub(b.startingCash).Div(b.startingCash).Float64()
	}

	startingCash, _ := b.startingCash.Float64()

	return Result{
		StartingCash: startingCash,
		EndingCash:   endingCash,
		EndingValue:  endingValue,
		RealizedPnL:  realized,
		ReturnPct:    returnPct,
		TradeCount:   b.priorTrades + len(b.trades),
	}
}

func (b *PaperBroker) record(bar types.Bar, side types.Action, amount, price float64, reason string) {
	b.trades = append(b.trades, Trade{
		Time:   bar.Time,
		Side:   side,
		Amount: amount,
		Price:  price,
		Reason: reason,
	})

	b.logger.Debug("order filled",
		zap.String("side", string(side)),
		zap.Float64("amount", amount),
		zap.Float64("price", price),
		zap.String("reason", reason),
	)
}
