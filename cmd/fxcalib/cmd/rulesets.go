package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/fxcalib/rules"
	"github.com/rustyeddy/fxcalib/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesetsCmd = &cobra.Command{
	Use:     "rulesets",
	Aliases: []string{"rs"},
	Short:   "Inspect stored rule sets",
	Long: `List and show rule sets in the rule set store.

Subcommands:
  list   - List every stored rule set, newest first
  show   - Print one rule set with its metrics and risk bands
  export - Write one rule set as a YAML rule file

Examples:
  fxcalib rulesets list
  fxcalib rulesets show cal-20250106-110000
  fxcalib rulesets show --active
  fxcalib rulesets export cal-20250106-110000 -o rules.yaml`,
}

var rulesetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rule sets",
	Args:  cobra.NoArgs,
	RunE:  runRulesetsList,
}

var rulesetsShowCmd = &cobra.Command{
	Use:   "show [tag]",
	Short: "Show one rule set",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesetsShow,
}

var rulesetsExportCmd = &cobra.Command{
	Use:   "export <tag>",
	Short: "Write a rule set as a YAML rule file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesetsExport,
}

var (
	rulesetsShowActive bool
	rulesetsShowJSON   bool
	rulesetsExportOut  string
)

func init() {
	rootCmd.AddCommand(rulesetsCmd)
	rulesetsCmd.AddCommand(rulesetsListCmd)
	rulesetsCmd.AddCommand(rulesetsShowCmd)
	rulesetsCmd.AddCommand(rulesetsExportCmd)

	rulesetsShowCmd.Flags().BoolVar(&rulesetsShowActive, "active", false, "show the active rule set")
	rulesetsShowCmd.Flags().BoolVar(&rulesetsShowJSON, "json", false, "print JSON instead of YAML")
	rulesetsExportCmd.Flags().StringVarP(&rulesetsExportOut, "output", "o", "rules.yaml", "output rule file")
}

func runRulesetsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list rule sets: %w", err)
	}
	fmt.Print(renderRecords(recs))
	return nil
}

// rulesetView is the printable form of a stored rule set.
type rulesetView struct {
	ID          int64            `json:"id" yaml:"id"`
	Tag         string           `json:"tag" yaml:"tag"`
	Active      bool             `json:"active" yaml:"active"`
	FeatureHash string           `json:"feature_hash" yaml:"feature_hash"`
	MCSeed      int64            `json:"mc_seed" yaml:"mc_seed"`
	Provenance  store.Provenance `json:"provenance" yaml:"provenance"`
	Metrics     map[string]any   `json:"metrics" yaml:"metrics"`
	RiskBands   map[string]any   `json:"risk_bands" yaml:"risk_bands"`
	Regime      map[string]any   `json:"regime" yaml:"regime"`
	Rules       rules.Document   `json:"rules" yaml:"rules"`
}

func runRulesetsShow(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !rulesetsShowActive {
		return fmt.Errorf("give a tag or --active")
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	var rec *store.Record
	if len(args) == 1 {
		rec, err = st.GetByTag(ctx, args[0])
	} else {
		rec, err = st.Active(ctx)
	}
	if err != nil {
		return fmt.Errorf("get rule set: %w", err)
	}

	v := rulesetView{
		ID:          rec.ID,
		Tag:         rec.Tag,
		Active:      rec.IsActive,
		FeatureHash: rec.FeatureHash,
		MCSeed:      rec.MCSeed,
		Provenance:  rec.Provenance,
		Metrics:     rec.Metrics,
		RiskBands:   rec.RiskBands,
		Regime:      rec.Regime,
		Rules:       rec.Rules.Document(),
	}
	var out []byte
	if rulesetsShowJSON {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode rule set: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runRulesetsExport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.GetByTag(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get rule set: %w", err)
	}
	if err := rules.SaveFile(rec.Rules, rulesetsExportOut); err != nil {
		return err
	}
	fmt.Printf("✓ Wrote %s to %s\n", rec.Tag, rulesetsExportOut)
	return nil
}
