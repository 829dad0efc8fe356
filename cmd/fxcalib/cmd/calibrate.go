package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rustyeddy/fxcalib/calibration"
	"github.com/rustyeddy/fxcalib/pkg/events"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate a new rule set from candle history",
	Long: `Build a feature dataset over the lookback window, search candidate rule
sets around a baseline, stress the finalists with Monte Carlo and persist
the winner under a new tag.

The baseline is the rule set named by --baseline, else the active rule
set, else the most recent one, else --baseline-file.

Examples:
  fxcalib calibrate --tag cal-2025w02
  fxcalib calibrate --markets EUR_USD,GBP_USD --days 60 --fast-mc
  fxcalib calibrate --baseline cal-2025w01 --activate --yes
  fxcalib calibrate --dry-run`,
	Args: cobra.NoArgs,
	RunE: runCalibrate,
}

var (
	calTag          string
	calBaseline     string
	calBaselineFile string
	calMarkets      string
	calFrom         string
	calTo           string
	calDays         int
	calDryRun       bool
	calFastMC       bool
	calHeuristic    bool
	calWorkers      int
	calActivate     bool
	calYes          bool
)

func init() {
	rootCmd.AddCommand(calibrateCmd)

	f := calibrateCmd.Flags()
	f.StringVarP(&calTag, "tag", "t", "", "tag for the new rule set (default cal-<timestamp>)")
	f.StringVarP(&calBaseline, "baseline", "b", "", "tag of the baseline rule set")
	f.StringVar(&calBaselineFile, "baseline-file", "rules.yaml", "YAML rule set used when the store has none")
	f.StringVarP(&calMarkets, "markets", "m", "", "comma separated markets (default from config)")
	f.StringVar(&calFrom, "from", "", "window start, YYYY-MM-DD")
	f.StringVar(&calTo, "to", "", "window end, YYYY-MM-DD (default now)")
	f.IntVarP(&calDays, "days", "d", 0, "lookback window in days (default from config)")
	f.BoolVar(&calDryRun, "dry-run", false, "run every stage but persist nothing")
	f.BoolVar(&calFastMC, "fast-mc", false, "analytical drawdown bound instead of simulation")
	f.BoolVar(&calHeuristic, "heuristic", false, "score with the heuristic only, no classifier")
	f.IntVarP(&calWorkers, "workers", "w", 0, "scoring workers (default from config, 0 means GOMAXPROCS)")
	f.BoolVar(&calActivate, "activate", false, "activate the winner once persisted")
	f.BoolVarP(&calYes, "yes", "y", false, "skip confirmation prompts")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc := a.cfg.Calibration
	if calFastMC {
		cc.FastMC = true
	}
	if calHeuristic {
		cc.HeuristicOnly = true
	}
	if calWorkers > 0 {
		cc.Workers = calWorkers
	}

	opts := calibration.RunOptions{
		Tag:          calTag,
		BaselineTag:  calBaseline,
		BaselineFile: calBaselineFile,
		Markets:      a.cfg.Markets(),
		WindowDays:   a.cfg.Data.WindowDays,
		DryRun:       calDryRun,
	}
	if calMarkets != "" {
		opts.Markets = splitList(calMarkets)
	}
	if calDays > 0 {
		opts.WindowDays = calDays
	}
	if opts.From, err = parseDay(calFrom); err != nil {
		return err
	}
	if opts.To, err = parseDay(calTo); err != nil {
		return err
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	fs, err := a.openFeatureStore()
	if err != nil {
		return fmt.Errorf("open feature store: %w", err)
	}
	defer fs.Close()

	src, closeSrc, err := a.candleSource()
	if err != nil {
		return fmt.Errorf("open candle source: %w", err)
	}
	defer closeSrc()

	p := &calibration.Pipeline{
		Store: st,
		Builder: &calibration.Builder{
			Source:            src,
			Store:             fs,
			SpreadPips:        a.cfg.Data.SpreadPips,
			DefaultSpreadPips: a.cfg.Data.DefaultSpreadPips,
			Log:               a.log,
		},
		Config:        calibrationConfig(cc),
		NewClassifier: classifierFactory(cc),
		Log:           a.log,
		Metrics:       a.metrics,
	}

	fmt.Println(titleStyle.Render("fxcalib calibration"))
	rep, err := p.Run(ctx, opts)
	if rep != nil {
		fmt.Println(renderReport(rep))
	}
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}
	if !rep.Persisted {
		fmt.Println(mutedStyle.Render("Dry run: nothing was persisted."))
		return nil
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("✓ Saved rule set %s (id %d)", rep.Tag, rep.RuleSetID)))

	pub, err := a.publisher()
	if err != nil {
		return err
	}
	defer pub.Close()
	publish(ctx, a.log, pub, events.Event{
		Type:  events.TypeCalibrated,
		Tag:   rep.Tag,
		RunID: rep.RunID,
		At:    time.Now().UTC(),
		Data: map[string]any{
			"baseline":   rep.BaselineTag,
			"markets":    rep.Markets,
			"expectancy": rep.Winner.Metrics.Expectancy,
			"composite":  rep.Winner.Metrics.Composite,
			"fallback":   rep.WinnerFallback,
		},
	})

	if !calActivate {
		fmt.Printf("\nActivate it with:\n  fxcalib activate %s\n", rep.Tag)
		return nil
	}
	return activateTag(ctx, a, st, pub, rep.Tag, calYes)
}

func publish(ctx context.Context, log *logger.Logger, pub events.Publisher, ev events.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("publish event", logger.String("type", ev.Type), logger.String("tag", ev.Tag), logger.Error(err))
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
