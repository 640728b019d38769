package indicator

import (
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// MACD computes the Moving Average Convergence Divergence line and its
// signal line, voting on signal-line crosses.
type MACD struct {
	label        string
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	macd         []float64
	signal       []float64
}

// NewMACD creates a new MACD indicator with standard 12/26/9 periods.
func NewMACD() Indicator {
	return &MACD{
		label:        "MACD",
		fastPeriod:   12,
		slowPeriod:   26,
		signalPeriod: 9,
		macd:         nil,
		signal:       nil,
	}
}

// Name returns the name of the indicator.
func (m *MACD) Name() types.IndicatorType {
	return types.IndicatorTypeMACD
}

// Label returns the label signal rules use to address this indicator.
func (m *MACD) Label() string {
	return m.label
}

func (m *MACD) setLabel(label string) {
	m.label = label
}

// Configure applies document parameters: fast, slow, signal.
func (m *MACD) Configure(params map[string]float64) error {
	if v, ok := params["fast"]; ok {
		if v <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "macd fast period must be positive, got %v", v)
		}

		m.fastPeriod = int(v)
	}

	if v, ok := params["slow"]; ok {
		if v <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "macd slow period must be positive, got %v", v)
		}

		m.slowPeriod = int(v)
	}

	if v, ok := params["signal"]; ok {
		if v <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "macd signal period must be positive, got %v", v)
		}

		m.signalPeriod = int(v)
	}

	if m.fastPeriod >= m.slowPeriod {
		return errors.Newf(errors.ErrCodeInvalidParameter, "macd fast period %d must be below slow period %d", m.fastPeriod, m.slowPeriod)
	}

	return nil
}

// Calculate recomputes the MACD and signal series over the history window.
func (m *MACD) Calculate(history []types.Bar) error {
	m.macd = nil
	m.signal = nil

	if len(history) < m.slowPeriod+m.signalPeriod {
		return nil
	}

	closes := make([]float64, len(history))
	for i, bar := range history {
		closes[i] = bar.Close
	}

	fast := ema(closes, m.fastPeriod)
	slow := ema(closes, m.slowPeriod)

	// EMA series start after their warm-up period; align on the slow one.
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))

	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	m.macd = macdLine
	m.signal = ema(macdLine, m.signalPeriod)

	return nil
}

func ema(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}

	multiplier := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	// Seed with the simple average of the first period.
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}

	current := seed / float64(period)
	out = append(out, current)

	for i := period; i < len(values); i++ {
		current = (values[i]-current)*multiplier + current
		out = append(out, current)
	}

	return out
}

// Ready reports whether both lines have at least two points to compare.
func (m *MACD) Ready() bool {
	return len(m.macd) >= 2 && len(m.signal) >= 2
}

// Vote returns the signal-line cross opinion for the current bar.
func (m *MACD) Vote() types.Vote {
	if !m.Ready() {
		return types.VoteHold
	}

	offset := len(m.macd) - len(m.signal)
	last := len(m.signal) - 1

	macdLast := m.macd[last+offset]
	macdPrev := m.macd[last+offset-1]
	sigLast := m.signal[last]
	sigPrev := m.signal[last-1]

	switch {
	case macdLast > sigLast && macdPrev <= sigPrev:
		return types.VoteBuy
	case macdLast < sigLast && macdPrev >= sigPrev:
		return types.VoteSell
	default:
		return types.VoteHold
	}
}

// Output returns the named series: "macd" or "signal".
func (m *MACD) Output(name string) ([]float64, error) {
	switch name {
	case "macd":
		return m.macd, nil
	case "signal":
		return m.signal, nil
	default:
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "macd has no output named %s", name)
	}
}
