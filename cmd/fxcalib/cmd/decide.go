package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rustyeddy/fxcalib/journal"
	"github.com/rustyeddy/fxcalib/rules"
	"github.com/rustyeddy/fxcalib/snapshot"
	"github.com/rustyeddy/fxcalib/store"
	"github.com/spf13/cobra"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide on one market snapshot",
	Long: `Evaluate a JSON market snapshot against a rule set and print the
decision.

The rule set is the one named by --tag, else the rules embedded in the
snapshot, else --rules-file, else the active rule set.

Examples:
  fxcalib decide --snapshot eurusd.json
  fxcalib decide --snapshot eurusd.json --tag cal-20250106-110000
  cat eurusd.json | fxcalib decide --snapshot - --json`,
	Args: cobra.NoArgs,
	RunE: runDecide,
}

var (
	decideSnapshot  string
	decideTag       string
	decideRulesFile string
	decideRecord    bool
	decideJSON      bool
)

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringVarP(&decideSnapshot, "snapshot", "s", "", "snapshot JSON file, - for stdin (required)")
	decideCmd.Flags().StringVarP(&decideTag, "tag", "t", "", "stored rule set to use")
	decideCmd.Flags().StringVarP(&decideRulesFile, "rules-file", "r", "", "YAML rule file to use")
	decideCmd.Flags().BoolVar(&decideRecord, "record", false, "record the decision in the journal")
	decideCmd.Flags().BoolVar(&decideJSON, "json", false, "print the decision as JSON")
	decideCmd.MarkFlagRequired("snapshot")
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runDecide(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	data, err := readInput(decideSnapshot)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := snapshot.FromJSON(data)
	if err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	// The journal doubles as the engine's ledger so cooldown and exposure
	// gates see recorded trades.
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rs, err := pickRuleSet(cmd, a, snap)
	if err != nil {
		return err
	}

	res := a.engine(j).Decide(ctx, snap, rs)

	if decideRecord {
		if err := j.RecordDecision(ctx, journal.DecisionRecord{
			Time:       time.Now().UTC(),
			Instrument: snap.NormalizedPair(),
			Result:     res,
			RuleSet:    rs.Tag(),
		}); err != nil {
			return fmt.Errorf("record decision: %w", err)
		}
	}

	if decideJSON {
		out, err := json.MarshalIndent(map[string]any{"rule_set": rs.Tag(), "result": res}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(renderDecision(rs.Tag(), res))
	return nil
}

func pickRuleSet(cmd *cobra.Command, a *app, snap *snapshot.Snapshot) (*rules.RuleSet, error) {
	switch {
	case decideTag != "":
	case snap.Rules() != nil:
		return snap.Rules(), nil
	case decideRulesFile != "":
		return rules.LoadFile(decideRulesFile)
	}

	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var rec *store.Record
	if decideTag != "" {
		rec, err = st.GetByTag(cmd.Context(), decideTag)
	} else {
		rec, err = st.Active(cmd.Context())
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.New("no --tag given, the snapshot has no rules and nothing is active")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get rule set: %w", err)
	}
	return rec.Rules, nil
}
