// moodswing is the sentiment-index strategy CLI: deterministic backtests,
// parameter sweeps and the live trading loop.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quatral/moodswing/backtest"
	"github.com/quatral/moodswing/config"
	"github.com/quatral/moodswing/exchange"
	"github.com/quatral/moodswing/live"
	"github.com/quatral/moodswing/logger"
	"github.com/quatral/moodswing/metrics"
	"github.com/quatral/moodswing/signal"
	"github.com/quatral/moodswing/store"
)

var (
	cfgFile  string
	dataFile string
)

func main() {
	// Credentials commonly live in a local .env during development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "moodswing",
		Short: "Sentiment-index perpetual futures strategy",
		Long: `moodswing trades a crowd-sentiment index on leveraged perpetual
futures: backtest a parameter set, sweep a grid, or run live.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./moodswing.yaml)")

	rootCmd.AddCommand(newBacktestCmd(), newSweepCmd(), newLiveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRecords(path string) ([]signal.Record, error) {
	if path == "" {
		return nil, errors.New("--data is required: a JSON file of feed records")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return signal.DecodeRecords(raw)
}

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a historical sentiment series once",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New()
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			records, err := loadRecords(dataFile)
			if err != nil {
				return err
			}

			eng, err := backtest.NewEngine(cfg.Strategy, log)
			if err != nil {
				return err
			}
			eng.CandlePeriod = cfg.Live.CandlePeriod
			res, err := eng.Run(records, cfg.InitialBalance)
			if err != nil {
				return err
			}

			out := struct {
				Summary      interface{} `json:"summary"`
				FinalBalance float64     `json:"finalBalance"`
				Bankrupt     bool        `json:"bankrupt"`
				Trades       interface{} `json:"trades"`
			}{res.Summary, res.FinalBalance, res.Bankrupt, res.Records}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "JSON file of feed records")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var (
		leverages []float64
		lows      []float64
		highs     []float64
		workers   int
		top       int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Grid-search leverage and thresholds over a historical series",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New()
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			records, err := loadRecords(dataFile)
			if err != nil {
				return err
			}

			params := backtest.SweepParams{
				Leverages:      leverages,
				LowThresholds:  lows,
				HighThresholds: highs,
				Workers:        workers,
			}
			rows, err := backtest.RunSweep(cmd.Context(), records, cfg.Strategy, params, cfg.InitialBalance, log)
			if err != nil {
				return err
			}

			if cfg.ResultsDB != "" {
				db, err := store.OpenSweepStore(cfg.ResultsDB)
				if err != nil {
					log.Warn("sweep results not persisted", logger.Err(err))
				} else {
					defer db.Close()
					if err := db.SaveRows(rows); err != nil {
						log.Warn("sweep results not persisted", logger.Err(err))
					}
				}
			}

			if top > len(rows) {
				top = len(rows)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-6s %-6s %-5s %12s %8s %10s\n",
				"leverage", "low", "high", "liq", "return", "sharpe", "balance")
			for _, r := range rows[:top] {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10.1f %-6.1f %-6.1f %-5d %11.2f%% %8.2f %10.2f\n",
					r.Leverage, r.LowThreshold, r.HighThreshold,
					r.Summary.Liquidations, r.Summary.TotalReturn*100, r.Summary.Sharpe, r.FinalBalance)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "JSON file of feed records")
	cmd.Flags().Float64SliceVar(&leverages, "leverage", []float64{1, 2, 3, 5}, "leverage levels")
	cmd.Flags().Float64SliceVar(&lows, "low", []float64{20, 25, 30}, "low thresholds")
	cmd.Flags().Float64SliceVar(&highs, "high", []float64{70, 75, 80}, "high thresholds")
	cmd.Flags().IntVar(&workers, "workers", 4, "parallel workers")
	cmd.Flags().IntVar(&top, "top", 10, "rows to print")
	return cmd
}

func newLiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Run the strategy against a venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New()
			if err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			var gw exchange.Gateway
			switch cfg.Live.Venue {
			case "binance":
				gw = exchange.NewBinance(cfg.Strategy, cfg.Live.APIKey, cfg.Live.APISecret, log)
			default:
				gw = exchange.NewPaper(cfg.Strategy, cfg.InitialBalance, log)
			}

			if cfg.Live.FeedURL == "" {
				return errors.New("live mode requires live.feed_url")
			}
			feed := signal.NewHTTPFeed(cfg.Live.FeedURL)

			loop, err := live.NewLoop(*cfg, gw, feed, store.NewStateStore(cfg.Live.StatePath), log)
			if err != nil {
				return err
			}
			if adv, err := live.NewAdvisor(log); err != nil {
				log.Warn("indicator advisor unavailable", logger.Err(err))
			} else {
				loop.Advisor = adv
			}

			if cfg.Live.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: cfg.Live.MetricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error("metrics server failed", logger.Err(err))
					}
				}()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// SIGHUP re-reads the config file and swaps the snapshot in
			// between cycles.
			hup := make(chan os.Signal, 1)
			ossignal.Notify(hup, syscall.SIGHUP)
			go func() {
				for range hup {
					fresh, err := config.Load(cfgFile)
					if err != nil {
						log.Error("config reload rejected", logger.Err(err))
						continue
					}
					if err := loop.Reload(*fresh); err != nil {
						log.Error("config reload rejected", logger.Err(err))
					}
				}
			}()

			return loop.Run(ctx)
		},
	}
}
