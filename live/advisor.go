package live

import (
	"github.com/evdnx/goti"

	"github.com/quatral/moodswing/logger"
)

// Advisor runs a technical-indicator suite alongside the sentiment strategy
// and logs momentum crossovers on the price series. Advisory only: nothing
// here feeds back into the decision path, so backtest and live decisions
// stay identical.
type Advisor struct {
	suite *goti.IndicatorSuite
	log   logger.Logger
}

func NewAdvisor(log logger.Logger) (*Advisor, error) {
	if log == nil {
		log = logger.NewNop()
	}
	suite, err := goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &Advisor{suite: suite, log: log}, nil
}

// Observe feeds one candle close into the suite and logs any RSI crossover.
// The feed carries no OHLCV detail, so price stands in for high/low/close
// with unit volume.
func (a *Advisor) Observe(price float64) {
	if a == nil {
		return
	}
	if err := a.suite.Add(price, price, price, 1); err != nil {
		a.log.Warn("advisor: indicator update failed", logger.Err(err))
		return
	}
	if bull, _ := a.suite.GetRSI().IsBullishCrossover(); bull {
		a.log.Info("advisor: RSI bullish crossover", logger.Float64("price", price))
	}
	if bear, _ := a.suite.GetRSI().IsBearishCrossover(); bear {
		a.log.Info("advisor: RSI bearish crossover", logger.Float64("price", price))
	}
}
