package store

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quatral/moodswing/backtest"
)

// SweepResult is one persisted sweep row. The combination columns are
// indexed together so the best run for a given asset and mode is a cheap
// lookup.
type SweepResult struct {
	gorm.Model
	Asset         string  `gorm:"index:idx_combo"`
	Mode          string  `gorm:"index:idx_combo"`
	LowThreshold  float64 `gorm:"index:idx_combo"`
	HighThreshold float64 `gorm:"index:idx_combo"`
	Leverage      float64 `gorm:"index:idx_combo"`

	TotalReturn  float64 `gorm:"index"`
	Sharpe       float64
	MaxDrawdown  float64
	Trades       int
	WinRate      float64
	Liquidations int
	FinalBalance float64
	Bankrupt     bool
	Err          string

	RunAt time.Time
}

// SweepStore persists sweep rows in a sqlite file.
type SweepStore struct {
	db *gorm.DB
}

func OpenSweepStore(path string) (*SweepStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SweepResult{}); err != nil {
		return nil, err
	}
	return &SweepStore{db: db}, nil
}

// SaveRows persists one sweep's rows, all stamped with the same run time.
func (s *SweepStore) SaveRows(rows []backtest.SweepRow) error {
	if len(rows) == 0 {
		return nil
	}
	runAt := time.Now().UTC()
	results := make([]SweepResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, SweepResult{
			Asset:         r.Asset,
			Mode:          string(r.Mode),
			LowThreshold:  r.LowThreshold,
			HighThreshold: r.HighThreshold,
			Leverage:      r.Leverage,
			TotalReturn:   r.Summary.TotalReturn,
			Sharpe:        r.Summary.Sharpe,
			MaxDrawdown:   r.Summary.MaxDrawdown,
			Trades:        r.Summary.Trades,
			WinRate:       r.Summary.WinRate,
			Liquidations:  r.Summary.Liquidations,
			FinalBalance:  r.FinalBalance,
			Bankrupt:      r.Bankrupt,
			Err:           r.Err,
			RunAt:         runAt,
		})
	}
	return s.db.CreateInBatches(results, 100).Error
}

// Top returns the best n stored rows for an asset, ranked by total return
// then Sharpe, matching the in-memory sweep ranking.
func (s *SweepStore) Top(asset string, n int) ([]SweepResult, error) {
	var out []SweepResult
	err := s.db.
		Where("asset = ? AND err = ''", asset).
		Order("total_return DESC, sharpe DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

func (s *SweepStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
