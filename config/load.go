package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Load reads the configuration from the given file (or the default search
// path when empty), layers MOODSWING_* environment variables on top and
// validates the result. It returns a fresh snapshot on every call, which is
// what makes hot-reload a whole-value swap.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("moodswing")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/moodswing")
	}

	v.SetEnvPrefix("MOODSWING")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No file is fine; defaults plus environment carry a paper run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Live.Venue != "" {
		if err := cfg.Live.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("initial_balance", 1000.0)
	v.SetDefault("results_db", "./data/sweeps.db")

	v.SetDefault("strategy.asset", "BTCUSDT")
	v.SetDefault("strategy.mode", string(Momentum))
	v.SetDefault("strategy.low_threshold", 30.0)
	v.SetDefault("strategy.high_threshold", 70.0)
	v.SetDefault("strategy.smoothing_window", 3)
	v.SetDefault("strategy.leverage", 3.0)
	v.SetDefault("strategy.max_position_ratio", 0.9)
	v.SetDefault("strategy.funding_rate_per_period", 0.0001)
	v.SetDefault("strategy.fee_rate", 0.0005)
	v.SetDefault("strategy.liquidation_loss_fraction", 0.95)
	v.SetDefault("strategy.min_open_balance", 10.0)

	v.SetDefault("live.venue", "paper")
	v.SetDefault("live.candle_period", 24*time.Hour)
	v.SetDefault("live.poll_interval", 30*time.Second)
	v.SetDefault("live.max_order_retries", 3)
	v.SetDefault("live.retry_base_delay", 2*time.Second)
	v.SetDefault("live.min_order_spacing", time.Second)
	v.SetDefault("live.state_path", "./data/state.json")
	v.SetDefault("live.metrics_addr", ":9109")
}

// overrideFromEnv maps the credential variables most deployments export
// directly, without the MOODSWING_ prefix.
func overrideFromEnv(cfg *Config) {
	if k := os.Getenv("BINANCE_API_KEY"); k != "" {
		cfg.Live.APIKey = k
	}
	if s := os.Getenv("BINANCE_API_SECRET"); s != "" {
		cfg.Live.APISecret = s
	}
}
