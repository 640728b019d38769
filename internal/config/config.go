package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default risk thresholds applied when the document leaves them unset.
const (
	DefaultTakeProfit = 0.04
	DefaultStopLoss   = 0.02
	// DefaultTrailingStop is the tightened stop percentage applied after a
	// take-profit trim when the trailing variant is enabled.
	DefaultTrailingStop = 0.01
)

// TradingParams are the immutable trading parameters of one run.
type TradingParams struct {
	Exchange        string              `yaml:"exchange" json:"exchange" validate:"required"`
	Asset           string              `yaml:"asset" json:"asset" validate:"required"`
	QuoteCurrency   string              `yaml:"quote_currency" json:"quote_currency" validate:"required"`
	CapitalBase     float64             `yaml:"capital_base" json:"capital_base" validate:"required,gt=0"`
	OrderSize       float64             `yaml:"order_size" json:"order_size" validate:"required,gt=0"`
	SlippageAllowed float64             `yaml:"slippage_allowed" json:"slippage_allowed" validate:"gte=0,lt=1"`
	TickSize        float64             `yaml:"tick_size,omitempty" json:"tick_size,omitempty"`
	Bars            int                 `yaml:"bars" json:"bars" validate:"required,gt=0"`
	DataFreq        types.DataFrequency `yaml:"data_freq" json:"data_freq" validate:"required,oneof=daily minute"`
	MinuteFreq      int                 `yaml:"minute_freq,omitempty" json:"minute_freq,omitempty"`
	Start           time.Time           `yaml:"start" json:"start"`
	End             time.Time           `yaml:"end" json:"end"`
	TakeProfit      float64             `yaml:"take_profit" json:"take_profit" validate:"gte=0,lt=1"`
	StopLoss        float64             `yaml:"stop_loss" json:"stop_loss" validate:"gte=0,lt=1"`
	// TrailingStop enables the ratcheting stop variant: a take-profit trim
	// tightens the stop threshold instead of closing the position outright.
	TrailingStop    bool    `yaml:"trailing_stop,omitempty" json:"trailing_stop,omitempty"`
	TrailingStopPct float64 `yaml:"trailing_stop_pct,omitempty" json:"trailing_stop_pct,omitempty" validate:"gte=0,lt=1"`
}

// IndicatorSpec names a registered indicator and its parameters.
type IndicatorSpec struct {
	Type   types.IndicatorType `yaml:"type" json:"type" validate:"required"`
	Label  string              `yaml:"label,omitempty" json:"label,omitempty"`
	Params map[string]float64  `yaml:"params,omitempty" json:"params,omitempty"`
}

// RuleSpec names a registered comparison function and its operands. Operands
// reference indicator outputs as "LABEL" or "LABEL.output".
type RuleSpec struct {
	Func   types.RuleFunc    `yaml:"func" json:"func" validate:"required"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// SignalSpecs holds the custom buy/sell rules of a strategy document.
type SignalSpecs struct {
	Buy  []RuleSpec `yaml:"buy,omitempty" json:"buy,omitempty"`
	Sell []RuleSpec `yaml:"sell,omitempty" json:"sell,omitempty"`
}

// StrategyConfig is the declarative strategy document. It is read-only during
// execution; a run identifier is generated at load time when absent.
type StrategyConfig struct {
	ID   string `yaml:"id,omitempty" json:"id,omitempty"`
	Name string `yaml:"name" json:"name" validate:"required"`
	// OverrideSignals tallies only custom-rule votes and ignores indicator
	// votes entirely. A per-run configuration switch.
	OverrideSignals bool            `yaml:"override_signals,omitempty" json:"override_signals,omitempty"`
	Trading         TradingParams   `yaml:"trading" json:"trading" validate:"required"`
	Indicators      []IndicatorSpec `yaml:"indicators,omitempty" json:"indicators,omitempty" validate:"dive"`
	Signals         SignalSpecs     `yaml:"signals,omitempty" json:"signals,omitempty"`
}

// Load parses a strategy document from YAML (or JSON, a YAML subset),
// applies defaults, and validates it.
func Load(content []byte) (*StrategyConfig, error) {
	cfg := &StrategyConfig{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDocument, "failed to parse strategy document", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads and parses a strategy document from disk.
func LoadFile(path string) (*StrategyConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidDocument, err, "failed to read strategy document %s", path)
	}

	return Load(content)
}

func (c *StrategyConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if c.Name == "" {
		c.Name = "strat-" + c.ID
	}

	if c.Trading.TakeProfit == 0 {
		c.Trading.TakeProfit = DefaultTakeProfit
	}

	if c.Trading.StopLoss == 0 {
		c.Trading.StopLoss = DefaultStopLoss
	}

	if c.Trading.TrailingStop && c.Trading.TrailingStopPct == 0 {
		c.Trading.TrailingStopPct = DefaultTrailingStop
	}

	// Poloniex pairs are denominated in 1/1000th of a full coin.
	if c.Trading.Exchange == "poloniex" && c.Trading.TickSize == 0 {
		c.Trading.TickSize = 1000.0
	}
}

// Validate checks struct tags plus the cross-field frequency rules.
func (c *StrategyConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid strategy document", err)
	}

	if c.Trading.DataFreq == types.FrequencyMinute && c.Trading.MinuteFreq <= 0 {
		return errors.New(errors.ErrCodeInvalidFrequency, "minute_freq is required when data_freq is minute")
	}

	if c.Trading.DataFreq == types.FrequencyDaily && c.Trading.MinuteFreq > 0 {
		return errors.New(errors.ErrCodeInvalidFrequency, "minute_freq must be unset when data_freq is daily")
	}

	if !c.Trading.End.IsZero() && !c.Trading.Start.IsZero() && !c.Trading.End.After(c.Trading.Start) {
		return errors.New(errors.ErrCodeInvalidDateRange, "end must be after start")
	}

	return nil
}

// Serialize renders the document as JSON for queue payloads.
func (c *StrategyConfig) Serialize() (string, error) {
	out, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidDocument, "failed to serialize strategy document", err)
	}

	return string(out), nil
}

// GenerateSchemaJSON generates a JSON schema for the strategy document.
func (c *StrategyConfig) GenerateSchemaJSON() (string, error) {
	schema := jsonschema.Reflect(c)

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidDocument, "failed to generate schema", err)
	}

	return string(schemaJSON), nil
}

// Symbol returns the exchange trading pair for the configured asset.
func (c *StrategyConfig) Symbol() string {
	return strings.ToUpper(c.Trading.Asset + c.Trading.QuoteCurrency)
}

// BarInterval converts the configured frequency to a bar duration.
func (c *StrategyConfig) BarInterval() time.Duration {
	if c.Trading.DataFreq == types.FrequencyMinute {
		return time.Duration(c.Trading.MinuteFreq) * time.Minute
	}

	return 24 * time.Hour
}
