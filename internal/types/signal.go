package types

// Vote is a single indicator's or rule's opinion for the current bar.
// Recomputed every bar, never persisted.
type Vote string

const (
	// VoteBuy signals a buy opportunity
	VoteBuy Vote = "BUY"
	// VoteSell signals a sell opportunity
	VoteSell Vote = "SELL"
	// VoteHold signals no action
	VoteHold Vote = "HOLD"
)

// Action is the aggregated decision for one bar.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// IndicatorType identifies a registered indicator implementation.
type IndicatorType string

const (
	IndicatorTypeRSI  IndicatorType = "rsi"
	IndicatorTypeMA   IndicatorType = "ma_crossover"
	IndicatorTypeMACD IndicatorType = "macd"
)

// RuleFunc identifies a registered signal comparison function.
type RuleFunc string

const (
	RuleCrossedAbove RuleFunc = "crossed_above"
	RuleCrossedBelow RuleFunc = "crossed_below"
	RuleValueGT      RuleFunc = "value_gt"
	RuleValueLT      RuleFunc = "value_lt"
)
