package indicator

import (
	"github.com/produvia/kryptos-go/internal/types"
)

// Indicator is one computed technical indicator attached to a run. Each bar
// the runtime recomputes it over the fetched history window and consumes its
// buy/sell vote. An indicator that has not seen enough warm-up bars reports
// Ready() == false and its vote is excluded from the tally.
type Indicator interface {
	// Name returns the registered type of the indicator
	Name() types.IndicatorType
	// Label returns the per-run label used by signal rules to address outputs
	Label() string
	// Configure applies the document's parameters before the run starts
	Configure(params map[string]float64) error
	// Calculate recomputes the output series over the history window
	Calculate(history []types.Bar) error
	// Ready reports whether enough bars were seen to produce output
	Ready() bool
	// Vote returns the indicator's opinion for the current bar
	Vote() types.Vote
	// Output returns a named output series, most recent value last
	Output(name string) ([]float64, error)
}
