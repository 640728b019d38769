package signal

import (
	"testing"

	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/stretchr/testify/suite"
)

// stubIndicator is a scripted indicator for aggregation tests.
type stubIndicator struct {
	label   string
	vote    types.Vote
	ready   bool
	outputs map[string][]float64
}

func (s *stubIndicator) Name() types.IndicatorType             { return types.IndicatorTypeRSI }
func (s *stubIndicator) Label() string                         { return s.label }
func (s *stubIndicator) Configure(map[string]float64) error    { return nil }
func (s *stubIndicator) Calculate([]types.Bar) error           { return nil }
func (s *stubIndicator) Ready() bool                           { return s.ready }
func (s *stubIndicator) Vote() types.Vote                      { return s.vote }
func (s *stubIndicator) Output(name string) ([]float64, error) { return s.outputs[name], nil }

type AggregatorTestSuite struct {
	suite.Suite
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

func (s *AggregatorTestSuite) buyRule() Rule {
	rules, err := ResolveRules(config.SignalSpecs{
		Buy: []config.RuleSpec{{Func: types.RuleValueGT, Params: map[string]string{"a": "2", "b": "1"}}},
	}, nil)
	s.Require().NoError(err)

	return rules[0]
}

func (s *AggregatorTestSuite) sellRule() Rule {
	rules, err := ResolveRules(config.SignalSpecs{
		Sell: []config.RuleSpec{{Func: types.RuleValueGT, Params: map[string]string{"a": "2", "b": "1"}}},
	}, nil)
	s.Require().NoError(err)

	return rules[0]
}

func (s *AggregatorTestSuite) TestBuyMajority() {
	agg := NewAggregator([]Rule{s.buyRule(), s.buyRule(), s.sellRule()}, false)

	decision := agg.Evaluate(nil)

	s.Equal(types.ActionBuy, decision.Action)
	s.Equal(2, decision.Buys)
	s.Equal(1, decision.Sells)
}

func (s *AggregatorTestSuite) TestSellMajority() {
	agg := NewAggregator([]Rule{s.sellRule(), s.sellRule(), s.buyRule()}, false)

	decision := agg.Evaluate(nil)

	s.Equal(types.ActionSell, decision.Action)
}

func (s *AggregatorTestSuite) TestTieResolvesToHold() {
	agg := NewAggregator([]Rule{s.buyRule(), s.sellRule()}, false)

	decision := agg.Evaluate(nil)

	s.Equal(types.ActionHold, decision.Action)
	s.Equal(1, decision.Buys)
	s.Equal(1, decision.Sells)
}

func (s *AggregatorTestSuite) TestIndicatorVotesCounted() {
	agg := NewAggregator(nil, false)

	decision := agg.Evaluate([]indicator.Indicator{
		&stubIndicator{label: "a", vote: types.VoteBuy, ready: true},
		&stubIndicator{label: "b", vote: types.VoteHold, ready: true},
	})

	s.Equal(types.ActionBuy, decision.Action)
	s.Equal(1, decision.Buys)
	s.Equal(1, decision.Neutrals)
}

func (s *AggregatorTestSuite) TestWarmupVotesExcluded() {
	agg := NewAggregator(nil, false)

	decision := agg.Evaluate([]indicator.Indicator{
		&stubIndicator{label: "warming", vote: types.VoteBuy, ready: false},
		&stubIndicator{label: "ready", vote: types.VoteSell, ready: true},
	})

	s.Equal(types.ActionSell, decision.Action)
	s.Equal(1, decision.Excluded)
	s.Zero(decision.Buys)
	s.Zero(decision.Neutrals)
}

func (s *AggregatorTestSuite) TestOverrideIgnoresIndicatorVotes() {
	agg := NewAggregator([]Rule{s.buyRule()}, true)

	decision := agg.Evaluate([]indicator.Indicator{
		&stubIndicator{label: "a", vote: types.VoteSell, ready: true},
		&stubIndicator{label: "b", vote: types.VoteSell, ready: true},
	})

	s.Equal(types.ActionBuy, decision.Action)
	s.Zero(decision.Sells)
}

func (s *AggregatorTestSuite) TestCustomRuleAndIndicatorTie() {
	agg := NewAggregator([]Rule{s.buyRule()}, false)

	decision := agg.Evaluate([]indicator.Indicator{
		&stubIndicator{label: "a", vote: types.VoteSell, ready: true},
	})

	s.Equal(types.ActionHold, decision.Action)
}
