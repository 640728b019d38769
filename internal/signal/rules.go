package signal

import (
	"strconv"

	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// operand is one side of a rule comparison: either a constant or a named
// indicator output series.
type operand struct {
	constant   float64
	isConstant bool
	source     indicator.Indicator
	output     string
}

// series returns the operand as a value series, most recent last. Constants
// are unbounded series of themselves.
func (o operand) series(length int) ([]float64, bool) {
	if o.isConstant {
		values := make([]float64, length)
		for i := range values {
			values[i] = o.constant
		}

		return values, true
	}

	values, err := o.source.Output(o.output)
	if err != nil || len(values) == 0 {
		return nil, false
	}

	return values, true
}

// Rule is one resolved custom signal rule. Resolution happens once at
// configuration-load time against the run's indicator handles; execution
// never looks anything up by name.
type Rule struct {
	side types.Vote
	fn   types.RuleFunc
	a    operand
	b    operand
}

// Evaluate runs the comparison for the current bar. ready is false while
// either operand's indicator is still warming up; such rules are excluded
// from the tally rather than counted as neutral.
func (r Rule) Evaluate() (fired bool, ready bool) {
	seriesA, okA := r.a.series(2)
	seriesB, okB := r.b.series(2)

	if !okA || !okB {
		return false, false
	}

	lastA := seriesA[len(seriesA)-1]
	lastB := seriesB[len(seriesB)-1]

	switch r.fn {
	case types.RuleValueGT:
		return lastA > lastB, true
	case types.RuleValueLT:
		return lastA < lastB, true
	case types.RuleCrossedAbove:
		if len(seriesA) < 2 || len(seriesB) < 2 {
			return false, false
		}

		prevA := seriesA[len(seriesA)-2]
		prevB := seriesB[len(seriesB)-2]

		return lastA > lastB && prevA <= prevB, true
	case types.RuleCrossedBelow:
		if len(seriesA) < 2 || len(seriesB) < 2 {
			return false, false
		}

		prevA := seriesA[len(seriesA)-2]
		prevB := seriesB[len(seriesB)-2]

		return lastA < lastB && prevA >= prevB, true
	default:
		return false, false
	}
}

// Side returns the vote the rule casts when it fires.
func (r Rule) Side() types.Vote {
	return r.side
}

// ResolveRules binds the document's buy/sell rule specs to indicator handles.
func ResolveRules(specs config.SignalSpecs, indicators []indicator.Indicator) ([]Rule, error) {
	byLabel := make(map[string]indicator.Indicator, len(indicators))
	for _, ind := range indicators {
		byLabel[ind.Label()] = ind
	}

	rules := make([]Rule, 0, len(specs.Buy)+len(specs.Sell))

	for _, spec := range specs.Buy {
		rule, err := resolveRule(spec, types.VoteBuy, byLabel)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	for _, spec := range specs.Sell {
		rule, err := resolveRule(spec, types.VoteSell, byLabel)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

func resolveRule(spec config.RuleSpec, side types.Vote, byLabel map[string]indicator.Indicator) (Rule, error) {
	switch spec.Func {
	case types.RuleCrossedAbove, types.RuleCrossedBelow, types.RuleValueGT, types.RuleValueLT:
	default:
		return Rule{}, errors.Newf(errors.ErrCodeSignalRuleNotFound, "signal rule %s not registered", spec.Func)
	}

	a, err := resolveOperand(spec.Params["a"], byLabel)
	if err != nil {
		return Rule{}, err
	}

	b, err := resolveOperand(spec.Params["b"], byLabel)
	if err != nil {
		return Rule{}, err
	}

	return Rule{side: side, fn: spec.Func, a: a, b: b}, nil
}

// resolveOperand parses "LABEL.output", a bare "LABEL", or a numeric constant.
func resolveOperand(ref string, byLabel map[string]indicator.Indicator) (operand, error) {
	if ref == "" {
		return operand{}, errors.New(errors.ErrCodeMissingParameter, "signal rule operand is empty")
	}

	if value, err := strconv.ParseFloat(ref, 64); err == nil {
		return operand{constant: value, isConstant: true}, nil
	}

	label := ref
	output := ""

	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			label = ref[:i]
			output = ref[i+1:]

			break
		}
	}

	ind, ok := byLabel[label]
	if !ok {
		return operand{}, errors.Newf(errors.ErrCodeIndicatorNotFound, "signal rule references unknown indicator %s", label)
	}

	return operand{source: ind, output: output}, nil
}
