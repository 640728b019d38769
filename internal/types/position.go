package types

import "github.com/moznion/go-optional"

// Position is an open holding in the traded asset. Created on first fill,
// mutated on trims, destroyed when the amount reaches zero.
type Position struct {
	Symbol    string  `yaml:"symbol" json:"symbol"`
	Amount    float64 `yaml:"amount" json:"amount"`
	CostBasis float64 `yaml:"cost_basis" json:"cost_basis"`
	// AdjustedStop is the ratcheted stop-loss percentage set after a
	// take-profit trim when the strategy runs a trailing-stop variant.
	// When present it replaces the configured stop-loss percentage.
	AdjustedStop optional.Option[float64] `yaml:"adjusted_stop,omitempty" json:"adjusted_stop,omitempty"`
}

// Value returns the position's market value at the given price.
func (p Position) Value(price float64) float64 {
	return p.Amount * price
}

// UnrealizedPnL returns profit relative to cost basis at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.CostBasis) * p.Amount
}
