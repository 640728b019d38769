package broker

import (
	"testing"
	"time"

	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type PaperBrokerTestSuite struct {
	suite.Suite
	broker *PaperBroker
}

func TestPaperBrokerSuite(t *testing.T) {
	suite.Run(t, new(PaperBrokerTestSuite))
}

func (s *PaperBrokerTestSuite) SetupTest() {
	s.broker = NewPaperBroker("BTCUSDT", 1000, 0.01, logger.NewNopLogger())
}

func barAt(price float64) types.Bar {
	return types.Bar{
		Time:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Close: price,
	}
}

func (s *PaperBrokerTestSuite) TestBuyAppliesSlippage() {
	s.Require().NoError(s.broker.Buy(barAt(100), 2, "signal"))

	// Fill at 100 * 1.01 for 2 units.
	s.InDelta(1000-202, s.broker.Cash(), 1e-9)

	position := s.broker.Position()
	s.Require().True(position.IsSome())
	s.InDelta(2, position.Unwrap().Amount, 1e-9)
	s.InDelta(101, position.Unwrap().CostBasis, 1e-9)
}

func (s *PaperBrokerTestSuite) TestBuyAveragesCostBasis() {
	s.Require().NoError(s.broker.Buy(barAt(100), 1, "signal"))
	s.Require().NoError(s.broker.Buy(barAt(200), 1, "signal"))

	position := s.broker.Position()
	s.Require().True(position.IsSome())
	s.InDelta(2, position.Unwrap().Amount, 1e-9)
	s.InDelta((101+202)/2.0, position.Unwrap().CostBasis, 1e-9)
}

func (s *PaperBrokerTestSuite) TestBuyInsufficientCash() {
	err := s.broker.Buy(barAt(100), 100, "signal")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInsufficientCash))
	s.InDelta(1000, s.broker.Cash(), 1e-9)
	s.True(s.broker.Position().IsNone())
}

func (s *PaperBrokerTestSuite) TestSellRealizesPnL() {
	s.Require().NoError(s.broker.Buy(barAt(100), 1, "signal"))
	s.Require().NoError(s.broker.Sell(barAt(200), 1, "signal"))

	s.True(s.broker.Position().IsNone())

	// Bought at 101, sold at 198: cash back above the start.
	s.InDelta(1000-101+198, s.broker.Cash(), 1e-9)

	result := s.broker.Summary(200)
	s.InDelta(97, result.RealizedPnL, 1e-9)
	s.Equal(2, result.TradeCount)
}

func (s *PaperBrokerTestSuite) TestSellWithoutPosition() {
	err := s.broker.Sell(barAt(100), 1, "signal")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeNoOpenPosition))
}

func (s *PaperBrokerTestSuite) TestSellClampsToHeldAmount() {
	s.Require().NoError(s.broker.Buy(barAt(100), 1, "signal"))
	s.Require().NoError(s.broker.Sell(barAt(100), 5, "signal"))

	s.True(s.broker.Position().IsNone())
}

func (s *PaperBrokerTestSuite) TestPartialSellKeepsRemainder() {
	s.Require().NoError(s.broker.Buy(barAt(100), 2, "signal"))
	s.Require().NoError(s.broker.Sell(barAt(110), 1, "take_profit"))

	position := s.broker.Position()
	s.Require().True(position.IsSome())
	s.InDelta(1, position.Unwrap().Amount, 1e-9)
}

func (s *PaperBrokerTestSuite) TestAdjustStop() {
	s.Require().NoError(s.broker.Buy(barAt(100), 1, "signal"))
	s.Require().NoError(s.broker.AdjustStop(0.01))

	position := s.broker.Position()
	s.Require().True(position.IsSome())
	s.Require().True(position.Unwrap().AdjustedStop.IsSome())
	s.InDelta(0.01, position.Unwrap().AdjustedStop.Unwrap(), 1e-9)
}

func (s *PaperBrokerTestSuite) TestSummaryIncludesOpenPosition() {
	s.Require().NoError(s.broker.Buy(barAt(100), 2, "signal"))

	result := s.broker.Summary(150)
	s.InDelta(1000-202, result.EndingCash, 1e-9)
	s.InDelta(1000-202+300, result.EndingValue, 1e-9)
	s.InDelta((1000-202+300-1000)/1000.0, result.ReturnPct, 1e-9)
}

func (s *PaperBrokerTestSuite) TestRestorePortfolioCarriesOver() {
	s.Require().NoError(s.broker.Buy(barAt(100), 2, "signal"))
	s.Require().NoError(s.broker.Sell(barAt(110), 1, "take_profit"))

	snapshot := s.broker.Portfolio()

	fresh := NewPaperBroker("BTCUSDT", 1000, 0.01, logger.NewNopLogger())
	fresh.RestorePortfolio(snapshot)

	s.InDelta(s.broker.Cash(), fresh.Cash(), 1e-9)

	position := fresh.Position()
	s.Require().True(position.IsSome())
	s.InDelta(1, position.Unwrap().Amount, 1e-9)
	s.InDelta(101, position.Unwrap().CostBasis, 1e-9)

	// Prior fills count toward the summary even though the fresh broker
	// recorded none of them itself.
	result := fresh.Summary(110)
	s.Equal(2, result.TradeCount)
	s.InDelta(s.broker.Summary(110).RealizedPnL, result.RealizedPnL, 1e-9)
	s.Empty(fresh.Trades())
}

func (s *PaperBrokerTestSuite) TestTradesRecorded() {
	s.Require().NoError(s.broker.Buy(barAt(100), 1, "signal"))
	s.Require().NoError(s.broker.SellAll(barAt(120), "stop_loss"))

	trades := s.broker.Trades()
	s.Require().Len(trades, 2)
	s.Equal(types.ActionBuy, trades[0].Side)
	s.Equal(types.ActionSell, trades[1].Side)
	s.Equal("stop_loss", trades[1].Reason)
}
