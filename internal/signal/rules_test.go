package signal

import (
	"testing"

	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type RulesTestSuite struct {
	suite.Suite
}

func TestRulesSuite(t *testing.T) {
	suite.Run(t, new(RulesTestSuite))
}

func (s *RulesTestSuite) resolve(spec config.RuleSpec, indicators []indicator.Indicator) Rule {
	rules, err := ResolveRules(config.SignalSpecs{Buy: []config.RuleSpec{spec}}, indicators)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)

	return rules[0]
}

func (s *RulesTestSuite) TestCrossedAbove() {
	ind := &stubIndicator{
		label: "MA",
		outputs: map[string][]float64{
			"fast": {1, 3},
			"slow": {2, 2},
		},
	}

	rule := s.resolve(config.RuleSpec{
		Func:   types.RuleCrossedAbove,
		Params: map[string]string{"a": "MA.fast", "b": "MA.slow"},
	}, []indicator.Indicator{ind})

	fired, ready := rule.Evaluate()
	s.True(ready)
	s.True(fired)
}

func (s *RulesTestSuite) TestCrossedAboveNotFiredWhenAlreadyAbove() {
	ind := &stubIndicator{
		label: "MA",
		outputs: map[string][]float64{
			"fast": {3, 4},
			"slow": {2, 2},
		},
	}

	rule := s.resolve(config.RuleSpec{
		Func:   types.RuleCrossedAbove,
		Params: map[string]string{"a": "MA.fast", "b": "MA.slow"},
	}, []indicator.Indicator{ind})

	fired, ready := rule.Evaluate()
	s.True(ready)
	s.False(fired)
}

func (s *RulesTestSuite) TestValueComparisonAgainstConstant() {
	ind := &stubIndicator{
		label:   "RSI",
		outputs: map[string][]float64{"rsi": {50, 25}},
	}

	rule := s.resolve(config.RuleSpec{
		Func:   types.RuleValueLT,
		Params: map[string]string{"a": "RSI.rsi", "b": "30"},
	}, []indicator.Indicator{ind})

	fired, ready := rule.Evaluate()
	s.True(ready)
	s.True(fired)
}

func (s *RulesTestSuite) TestNotReadyWhileIndicatorWarmsUp() {
	ind := &stubIndicator{
		label:   "RSI",
		outputs: map[string][]float64{},
	}

	rule := s.resolve(config.RuleSpec{
		Func:   types.RuleValueGT,
		Params: map[string]string{"a": "RSI.rsi", "b": "70"},
	}, []indicator.Indicator{ind})

	fired, ready := rule.Evaluate()
	s.False(ready)
	s.False(fired)
}

func (s *RulesTestSuite) TestUnknownIndicatorRejectedAtLoad() {
	_, err := ResolveRules(config.SignalSpecs{
		Buy: []config.RuleSpec{{
			Func:   types.RuleValueGT,
			Params: map[string]string{"a": "GHOST.rsi", "b": "70"},
		}},
	}, nil)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeIndicatorNotFound))
}

func (s *RulesTestSuite) TestUnknownRuleFuncRejectedAtLoad() {
	_, err := ResolveRules(config.SignalSpecs{
		Buy: []config.RuleSpec{{
			Func:   types.RuleFunc("levitates"),
			Params: map[string]string{"a": "1", "b": "2"},
		}},
	}, nil)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeSignalRuleNotFound))
}
