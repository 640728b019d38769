package signal

import (
	"github.com/produvia/kryptos-go/internal/indicator"
	"github.com/produvia/kryptos-go/internal/types"
)

// Decision is the aggregated outcome for one bar with the tally that
// produced it. The counts are reported as telemetry on the run.
type Decision struct {
	Action   types.Action
	Buys     int
	Sells    int
	Neutrals int
	// Excluded counts votes whose indicator had not produced output yet.
	// They are excluded from the tally, not counted as neutral.
	Excluded int
}

// Aggregator weighs custom-rule and indicator votes into one action per bar.
type Aggregator struct {
	rules []Rule
	// override tallies only custom-rule votes and ignores indicator votes
	// entirely. A per-run configuration switch, never a runtime decision.
	override bool
}

// NewAggregator creates an aggregator over the run's resolved rules.
func NewAggregator(rules []Rule, override bool) *Aggregator {
	return &Aggregator{rules: rules, override: override}
}

// Evaluate tallies all votes for the current bar. Custom rules are evaluated
// first and always counted. BUY iff buys > sells, SELL iff sells > buys; the
// tie resolves to HOLD, never to either side.
func (a *Aggregator) Evaluate(indicators []indicator.Indicator) Decision {
	decision := Decision{Action: types.ActionHold}

	for _, rule := range a.rules {
		fired, ready := rule.Evaluate()
		if !ready {
			decision.Excluded++

			continue
		}

		if !fired {
			decision.Neutrals++

			continue
		}

		switch rule.Side() {
		case types.VoteBuy:
			decision.Buys++
		case types.VoteSell:
			decision.Sells++
		}
	}

	if !a.override {
		for _, ind := range indicators {
			if !ind.Ready() {
				decision.Excluded++

				continue
			}

			switch ind.Vote() {
			case types.VoteBuy:
				decision.Buys++
			case types.VoteSell:
				decision.Sells++
			default:
				decision.Neutrals++
			}
		}
	}

	switch {
	case decision.Buys > decision.Sells:
		decision.Action = types.ActionBuy
	case decision.Sells > decision.Buys:
		decision.Action = types.ActionSell
	}

	return decision
}
