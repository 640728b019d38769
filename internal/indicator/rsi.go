package indicator

import (
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// RSI is the Relative Strength Index indicator. It votes buy when oversold
// and sell when overbought.
type RSI struct {
	label          string
	period         int
	lowerThreshold float64
	upperThreshold float64
	values         []float64
}

// NewRSI creates a new RSI indicator with default configuration.
func NewRSI() Indicator {
	return &RSI{
		label:          "RSI",
		period:         14, // Default period
		lowerThreshold: 30,
		upperThreshold: 70,
		values:         nil,
	}
}

// Name returns the name of the indicator.
func (r *RSI) Name() types.IndicatorType {
	return types.IndicatorTypeRSI
}

// Label returns the label signal rules use to address this indicator.
func (r *RSI) Label() string {
	return r.label
}

func (r *RSI) setLabel(label string) {
	r.label = label
}

// Configure applies document parameters: period, lower, upper.
func (r *RSI) Configure(params map[string]float64) error {
	if v, ok := params["period"]; ok {
		if v <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "rsi period must be positive, got %v", v)
		}

		r.period = int(v)
	}

	if v, ok := params["lower"]; ok {
		r.lowerThreshold = v
	}

	if v, ok := params["upper"]; ok {
		r.upperThreshold = v
	}

	return nil
}

// Calculate recomputes the RSI series over the history window using
// Wilder's smoothing method.
func (r *RSI) Calculate(history []types.Bar) error {
	r.values = nil

	if len(history) < r.period+1 {
		return nil
	}

	gains := make([]float64, 0, len(history)-1)
	losses := make([]float64, 0, len(history)-1)

	for i := 1; i < len(history); i++ {
		change := history[i].Close - history[i-1].Close
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := 0.0
	avgLoss := 0.0

	for i := 0; i < r.period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}

	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)

	r.values = append(r.values, rsiFromAverages(avgGain, avgLoss))

	for i := r.period; i < len(gains); i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		r.values = append(r.values, rsiFromAverages(avgGain, avgLoss))
	}

	return nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100 // Perfect uptrend
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}

// Ready reports whether the warm-up window has been satisfied.
func (r *RSI) Ready() bool {
	return len(r.values) > 0
}

// Vote returns the RSI opinion for the current bar.
func (r *RSI) Vote() types.Vote {
	if !r.Ready() {
		return types.VoteHold
	}

	current := r.values[len(r.values)-1]

	switch {
	case current < r.lowerThreshold:
		return types.VoteBuy
	case current > r.upperThreshold:
		return types.VoteSell
	default:
		return types.VoteHold
	}
}

// Output returns the RSI series; the only named output is "rsi" (or the label).
func (r *RSI) Output(name string) ([]float64, error) {
	if name == "rsi" || name == r.label || name == "" {
		return r.values, nil
	}

	return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "rsi has no output named %s", name)
}
