package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rustyeddy/fxcalib/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query and export trade journal records from the SQLite journal.

Subcommands:
  open   - List open trades
  export - Write closed trades in a date range as CSV

Examples:
  fxcalib journal open
  fxcalib journal export --from 2025-01-01 --to 2025-02-01 -o january.csv`,
}

var journalOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List open trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalOpen,
}

var journalExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export closed trades as CSV",
	Args:  cobra.NoArgs,
	RunE:  runJournalExport,
}

var (
	journalFrom   string
	journalTo     string
	journalOutput string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOpenCmd)
	journalCmd.AddCommand(journalExportCmd)

	journalExportCmd.Flags().StringVar(&journalFrom, "from", "", "first day, YYYY-MM-DD (default 30 days ago)")
	journalExportCmd.Flags().StringVar(&journalTo, "to", "", "day after the last, YYYY-MM-DD (default tomorrow)")
	journalExportCmd.Flags().StringVarP(&journalOutput, "output", "o", "-", "CSV file, - for stdout")
}

func runJournalOpen(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListOpenTrades(cmd.Context())
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return journal.WriteCSV(os.Stdout, recs)
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	start, end, err := exportRange(journalFrom, journalTo, time.Now().UTC())
	if err != nil {
		return err
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	var w io.Writer = os.Stdout
	if journalOutput != "-" {
		f, err := os.Create(journalOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", journalOutput, err)
		}
		defer f.Close()
		w = f
	}
	if err := journal.WriteCSV(w, recs); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if journalOutput != "-" {
		fmt.Printf("✓ Exported %d trades to %s\n", len(recs), journalOutput)
	}
	return nil
}

// exportRange resolves the [start, end) export window in UTC days.
func exportRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end, err := parseDay(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.IsZero() {
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	start, err := parseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is not before --to %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}
