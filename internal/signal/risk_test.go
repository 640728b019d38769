package signal

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/stretchr/testify/suite"
)

type RiskGateTestSuite struct {
	suite.Suite
}

func TestRiskGateSuite(t *testing.T) {
	suite.Run(t, new(RiskGateTestSuite))
}

func position(costBasis float64) optional.Option[types.Position] {
	return optional.Some(types.Position{Symbol: "BTCUSDT", Amount: 1, CostBasis: costBasis})
}

func (s *RiskGateTestSuite) TestNoPositionIsAlwaysClear() {
	gate := NewGate(0.1, 0.05, false, 0)

	s.Equal(RiskNone, gate.Check(optional.None[types.Position](), 1000))
}

func (s *RiskGateTestSuite) TestTakeProfitAtThreshold() {
	gate := NewGate(0.1, 0.05, false, 0)

	// Cost basis 100, take-profit 10%: 115 is past the threshold.
	s.Equal(RiskTakeProfit, gate.Check(position(100), 115))
	s.Equal(RiskTakeProfit, gate.Check(position(100), 110))
	s.Equal(RiskNone, gate.Check(position(100), 109.99))
}

func (s *RiskGateTestSuite) TestStopLossBelowThreshold() {
	gate := NewGate(0.1, 0.05, false, 0)

	s.Equal(RiskStopLoss, gate.Check(position(100), 94.99))
	s.Equal(RiskNone, gate.Check(position(100), 95))
}

func (s *RiskGateTestSuite) TestWithinThresholdsHolds() {
	gate := NewGate(0.1, 0.05, false, 0)

	s.Equal(RiskNone, gate.Check(position(100), 100))
	s.Equal(RiskNone, gate.Check(position(100), 104))
}

func (s *RiskGateTestSuite) TestAdjustedStopReplacesConfiguredStop() {
	gate := NewGate(0.1, 0.05, true, 0.01)

	pos := types.Position{Symbol: "BTCUSDT", Amount: 1, CostBasis: 100}
	gate.RatchetStop(&pos)
	s.Require().True(pos.AdjustedStop.IsSome())
	s.InDelta(0.01, pos.AdjustedStop.Unwrap(), 1e-9)

	// The ratcheted 1% stop fires where the configured 5% one would not.
	s.Equal(RiskStopLoss, gate.Check(optional.Some(pos), 98.9))
	s.Equal(RiskNone, gate.Check(optional.Some(pos), 99.5))
}

func (s *RiskGateTestSuite) TestTrailingFlag() {
	s.True(NewGate(0.1, 0.05, true, 0.01).Trailing())
	s.False(NewGate(0.1, 0.05, false, 0).Trailing())
}
