package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustyeddy/fxcalib/config"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/pkg/metrics"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fxcalib",
	Short: "FX rule set decision engine and calibration optimizer",
	Long: `fxcalib evaluates market snapshots against versioned rule sets and
calibrates new rule sets from candle history.

It provides tools for:
  - Calibrating rule sets with staged search and Monte Carlo risk checks
  - Activating and inspecting stored rule sets
  - Producing trade decisions for a snapshot
  - Serving decisions and rule sets over HTTP
  - Exporting the trade journal`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "fxcalib.yaml", "config file (YAML or JSON); defaults apply when absent")
}

// app carries what every command needs once the config is loaded.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	reg     *prometheus.Registry
	metrics *metrics.Recorder
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	if cfg.Metrics.Enabled {
		a.reg = prometheus.NewRegistry()
		a.metrics = metrics.New(a.reg)
	}
	return a, nil
}
