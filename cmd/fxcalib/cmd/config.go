package cmd

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/fxcalib/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage fxcalib configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  fxcalib config init -o fxcalib.yaml
  fxcalib config validate -f fxcalib.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings.

Example:
  fxcalib config init -o fxcalib.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  fxcalib config validate -f fxcalib.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "fxcalib.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  fxcalib calibrate --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Store: %s (journal %s)\n", cfg.Database.Path, cfg.Journal.Path)
	fmt.Printf("  Data: %s, %d day window, markets %s\n", cfg.Data.Source, cfg.Data.WindowDays, strings.Join(cfg.Markets(), ", "))
	fmt.Printf("  Features: %s\n", cfg.FeatureStore.Type)
	fmt.Printf("  Calibration: budget %d, %d finalists, %d MC runs\n",
		cfg.Calibration.Budget, cfg.Calibration.Finalists, cfg.Calibration.MCRuns)
	if cfg.Events.Enabled {
		fmt.Printf("  Events: %s on %s\n", cfg.Events.Topic, strings.Join(cfg.Events.Brokers, ","))
	}
	return nil
}
