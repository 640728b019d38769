package indicator

import (
	"testing"
	"time"

	"github.com/produvia/kryptos-go/internal/types"
	"github.com/stretchr/testify/suite"
)

// barsFromCloses builds a daily bar series from close prices.
func barsFromCloses(closes ...float64) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, c := range closes {
		bars[i] = types.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1,
		}
	}

	return bars
}

func rampBars(n int, start, step float64) []types.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}

	return barsFromCloses(closes...)
}

type IndicatorsTestSuite struct {
	suite.Suite
}

func TestIndicatorsSuite(t *testing.T) {
	suite.Run(t, new(IndicatorsTestSuite))
}

func (s *IndicatorsTestSuite) TestRSINotReadyDuringWarmup() {
	rsi := NewRSI()
	s.Require().NoError(rsi.Calculate(rampBars(10, 100, 1)))

	s.False(rsi.Ready())
	s.Equal(types.VoteHold, rsi.Vote())
}

func (s *IndicatorsTestSuite) TestRSIOverboughtVotesSell() {
	rsi := NewRSI()
	// A pure uptrend drives RSI to 100.
	s.Require().NoError(rsi.Calculate(rampBars(30, 100, 1)))

	s.True(rsi.Ready())
	s.Equal(types.VoteSell, rsi.Vote())

	values, err := rsi.Output("rsi")
	s.Require().NoError(err)
	s.InDelta(100.0, values[len(values)-1], 1e-9)
}

func (s *IndicatorsTestSuite) TestRSIOversoldVotesBuy() {
	rsi := NewRSI()
	s.Require().NoError(rsi.Calculate(rampBars(30, 200, -1)))

	s.True(rsi.Ready())
	s.Equal(types.VoteBuy, rsi.Vote())
}

func (s *IndicatorsTestSuite) TestMACrossoverBuySignal() {
	ma := NewMACrossover()
	s.Require().NoError(ma.Configure(map[string]float64{"fast": 2, "slow": 4}))

	// Flat then a sharp rise: the fast average crosses above the slow one
	// on the last bar.
	s.Require().NoError(ma.Calculate(barsFromCloses(10, 10, 10, 10, 9, 14)))

	s.True(ma.Ready())
	s.Equal(types.VoteBuy, ma.Vote())
}

func (s *IndicatorsTestSuite) TestMACrossoverSellSignal() {
	ma := NewMACrossover()
	s.Require().NoError(ma.Configure(map[string]float64{"fast": 2, "slow": 4}))

	s.Require().NoError(ma.Calculate(barsFromCloses(10, 10, 10, 10, 11, 6)))

	s.True(ma.Ready())
	s.Equal(types.VoteSell, ma.Vote())
}

func (s *IndicatorsTestSuite) TestMACrossoverNoCrossHolds() {
	ma := NewMACrossover()
	s.Require().NoError(ma.Configure(map[string]float64{"fast": 2, "slow": 4}))

	s.Require().NoError(ma.Calculate(barsFromCloses(10, 10, 10, 10, 10, 10)))

	s.True(ma.Ready())
	s.Equal(types.VoteHold, ma.Vote())
}

func (s *IndicatorsTestSuite) TestMACDReadyAfterWarmup() {
	macd := NewMACD()
	s.Require().NoError(macd.Calculate(rampBars(60, 100, 0.5)))

	s.True(macd.Ready())

	line, err := macd.Output("macd")
	s.Require().NoError(err)
	signal, err := macd.Output("signal")
	s.Require().NoError(err)
	s.NotEmpty(line)
	s.NotEmpty(signal)
}

func (s *IndicatorsTestSuite) TestMACDNotReadyDuringWarmup() {
	macd := NewMACD()
	s.Require().NoError(macd.Calculate(rampBars(20, 100, 0.5)))

	s.False(macd.Ready())
	s.Equal(types.VoteHold, macd.Vote())
}
