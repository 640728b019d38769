package indicator

import (
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// MACrossover computes fast and slow simple moving averages and votes on
// their crossover: buy when the fast average crosses above the slow one,
// sell when it crosses below.
type MACrossover struct {
	label      string
	fastPeriod int
	slowPeriod int
	fast       []float64
	slow       []float64
}

// NewMACrossover creates a new moving-average crossover indicator.
func NewMACrossover() Indicator {
	return &MACrossover{
		label:      "MA",
		fastPeriod: 10,
		slowPeriod: 30,
		fast:       nil,
		slow:       nil,
	}
}

// Name returns the name of the indicator.
func (m *MACrossover) Name() types.IndicatorType {
	return types.IndicatorTypeMA
}

// Label returns the label signal rules use to address this indicator.
func (m *MACrossover) Label() string {
	return m.label
}

func (m *MACrossover) setLabel(label string) {
	m.label = label
}

// Configure applies document parameters: fast, slow.
func (m *MACrossover) Configure(params map[string]float64) error {
	if v, ok := params["fast"]; ok {
		if v <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "ma fast period must be positive, got %v", v)
		}

		m.fastPeriod = int(v)
	}

	if v, ok := params["slow"]; ok {
		if v <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "ma slow period must be positive, got %v", v)
		}

		m.slowPeriod = int(v)
	}

	if m.fastPeriod >= m.slowPeriod {
		return errors.Newf(errors.ErrCodeInvalidParameter, "ma fast period %d must be below slow period %d", m.fastPeriod, m.slowPeriod)
	}

	return nil
}

// Calculate recomputes both average series over the history window.
func (m *MACrossover) Calculate(history []types.Bar) error {
	m.fast = sma(history, m.fastPeriod)
	m.slow = sma(history, m.slowPeriod)

	// Align series lengths so the same index refers to the same bar.
	if len(m.fast) > len(m.slow) {
		m.fast = m.fast[len(m.fast)-len(m.slow):]
	}

	return nil
}

func sma(history []types.Bar, period int) []float64 {
	if len(history) < period {
		return nil
	}

	values := make([]float64, 0, len(history)-period+1)
	sum := 0.0

	for i, bar := range history {
		sum += bar.Close
		if i >= period {
			sum -= history[i-period].Close
		}

		if i >= period-1 {
			values = append(values, sum/float64(period))
		}
	}

	return values
}

// Ready reports whether both averages have at least two points to compare.
func (m *MACrossover) Ready() bool {
	return len(m.fast) >= 2 && len(m.slow) >= 2
}

// Vote returns the crossover opinion for the current bar.
func (m *MACrossover) Vote() types.Vote {
	if !m.Ready() {
		return types.VoteHold
	}

	last := len(m.slow) - 1

	switch {
	case m.fast[last] > m.slow[last] && m.fast[last-1] <= m.slow[last-1]:
		return types.VoteBuy
	case m.fast[last] < m.slow[last] && m.fast[last-1] >= m.slow[last-1]:
		return types.VoteSell
	default:
		return types.VoteHold
	}
}

// Output returns the named average series: "fast" or "slow".
func (m *MACrossover) Output(name string) ([]float64, error) {
	switch name {
	case "fast":
		return m.fast, nil
	case "slow":
		return m.slow, nil
	default:
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "ma_crossover has no output named %s", name)
	}
}
