package config

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how the sentiment index maps to a position side.
type Mode string

const (
	// Momentum trades with the signal: greed goes long, fear goes short.
	Momentum Mode = "momentum"
	// Contrarian trades against the signal.
	Contrarian Mode = "contrarian"
)

// StrategyConfig holds every tunable parameter of one strategy run. A
// snapshot is immutable once handed to an engine or loop; reloads replace
// the whole value, never individual fields mid-cycle.
type StrategyConfig struct {
	Asset string `mapstructure:"asset"`
	Mode  Mode   `mapstructure:"mode"`

	// Decision thresholds on the smoothed sentiment index (0-100 scale).
	LowThreshold  float64 `mapstructure:"low_threshold"`
	HighThreshold float64 `mapstructure:"high_threshold"`

	// Smoothing window in samples. 1 disables smoothing.
	SmoothingWindow int `mapstructure:"smoothing_window"`

	// Financial model.
	Leverage             float64 `mapstructure:"leverage"`
	MaxPositionRatio     float64 `mapstructure:"max_position_ratio"`
	FundingRatePerPeriod float64 `mapstructure:"funding_rate_per_period"`
	FeeRate              float64 `mapstructure:"fee_rate"`

	// LiquidationLossFraction is the fraction of margin that, once lost,
	// triggers a forced close; the same fraction of margin is forfeited.
	LiquidationLossFraction float64 `mapstructure:"liquidation_loss_fraction"`

	// MinOpenBalance is the cash that must remain after funding a new
	// position; opens that would dip below it are skipped.
	MinOpenBalance float64 `mapstructure:"min_open_balance"`
}

// Validate checks that all fields are within sensible bounds and returns the
// first problem found, so a bad configuration is rejected before any run
// starts.
func (c *StrategyConfig) Validate() error {
	if c.Asset == "" {
		return errors.New("asset must be set")
	}
	if c.Mode != Momentum && c.Mode != Contrarian {
		return fmt.Errorf("mode %q must be %q or %q", c.Mode, Momentum, Contrarian)
	}
	if c.LowThreshold >= c.HighThreshold {
		return fmt.Errorf("low threshold (%v) must be below high threshold (%v)",
			c.LowThreshold, c.HighThreshold)
	}
	if c.SmoothingWindow < 1 {
		return errors.New("smoothing window must be at least 1")
	}
	if c.Leverage < 1 || c.Leverage > 125 {
		return fmt.Errorf("leverage (%v) must be between 1 and 125", c.Leverage)
	}
	if c.MaxPositionRatio <= 0 || c.MaxPositionRatio > 1 {
		return fmt.Errorf("max position ratio (%v) must be >0 and <=1", c.MaxPositionRatio)
	}
	if c.FeeRate < 0 || c.FeeRate > 0.05 {
		return fmt.Errorf("fee rate (%v) out of realistic range", c.FeeRate)
	}
	if c.LiquidationLossFraction <= 0 || c.LiquidationLossFraction > 1 {
		return fmt.Errorf("liquidation loss fraction (%v) must be >0 and <=1",
			c.LiquidationLossFraction)
	}
	if c.MinOpenBalance < 0 {
		return errors.New("min open balance cannot be negative")
	}
	return nil
}

// LiveConfig holds everything the live loop needs beyond the strategy
// parameters.
type LiveConfig struct {
	// Venue selects the gateway implementation: "paper" or "binance".
	Venue string `mapstructure:"venue"`

	// CandlePeriod is the fixed cadence of the sentiment feed.
	CandlePeriod time.Duration `mapstructure:"candle_period"`

	// PollInterval is the delay between feed polls while waiting for a
	// fresh sample after a candle boundary.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// MaxOrderRetries bounds order submission attempts per cycle.
	MaxOrderRetries int `mapstructure:"max_order_retries"`

	// RetryBaseDelay is the first retry delay; it grows linearly with the
	// attempt number.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// MinOrderSpacing is the floor between consecutive order submissions.
	MinOrderSpacing time.Duration `mapstructure:"min_order_spacing"`

	// StatePath is the durable state file written after every transition.
	StatePath string `mapstructure:"state_path"`

	FeedURL     string `mapstructure:"feed_url"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

func (c *LiveConfig) Validate() error {
	if c.Venue != "paper" && c.Venue != "binance" {
		return fmt.Errorf("venue %q must be paper or binance", c.Venue)
	}
	if c.CandlePeriod <= 0 {
		return errors.New("candle period must be positive")
	}
	if c.PollInterval <= 0 || c.PollInterval > c.CandlePeriod {
		return errors.New("poll interval must be positive and below the candle period")
	}
	if c.MaxOrderRetries < 1 {
		return errors.New("max order retries must be at least 1")
	}
	if c.StatePath == "" {
		return errors.New("state path must be set")
	}
	if c.Venue == "binance" && (c.APIKey == "" || c.APISecret == "") {
		return errors.New("binance venue requires api key and secret")
	}
	return nil
}

// Config is the full application configuration.
type Config struct {
	Strategy       StrategyConfig `mapstructure:"strategy"`
	Live           LiveConfig     `mapstructure:"live"`
	InitialBalance float64        `mapstructure:"initial_balance"`
	ResultsDB      string         `mapstructure:"results_db"`
}

func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.InitialBalance <= 0 {
		return errors.New("initial balance must be positive")
	}
	return nil
}
