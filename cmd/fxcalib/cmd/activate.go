package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/fxcalib/pkg/events"
	"github.com/rustyeddy/fxcalib/pkg/logger"
	"github.com/rustyeddy/fxcalib/store"
	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate <tag>",
	Short: "Make a stored rule set the active one",
	Long: `Mark one rule set active; every other rule set becomes inactive in the
same transaction.

Example:
  fxcalib activate cal-20250106-110000
  fxcalib activate cal-20250106-110000 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

var activateYes bool

func init() {
	rootCmd.AddCommand(activateCmd)
	activateCmd.Flags().BoolVarP(&activateYes, "yes", "y", false, "skip the confirmation prompt")
}

func runActivate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	pub, err := a.publisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	return activateTag(cmd.Context(), a, st, pub, args[0], activateYes)
}

type activator interface {
	GetByTag(ctx context.Context, tag string) (*store.Record, error)
	Active(ctx context.Context) (*store.Record, error)
	Activate(ctx context.Context, tag string) error
}

func activateTag(ctx context.Context, a *app, st activator, pub events.Publisher, tag string, yes bool) error {
	if _, err := st.GetByTag(ctx, tag); err != nil {
		return fmt.Errorf("rule set %s: %w", tag, err)
	}
	prompt := fmt.Sprintf("Activate rule set %s?", tag)
	if cur, err := st.Active(ctx); err == nil {
		if cur.Tag == tag {
			fmt.Println(mutedStyle.Render(fmt.Sprintf("%s is already active.", tag)))
			return nil
		}
		prompt = fmt.Sprintf("Activate rule set %s (replacing %s)?", tag, cur.Tag)
	}

	ok, err := confirm(prompt, yes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println(mutedStyle.Render("Activation cancelled."))
		return nil
	}

	if err := st.Activate(ctx, tag); err != nil {
		return fmt.Errorf("activate %s: %w", tag, err)
	}
	a.log.Info("rule set activated", logger.String("tag", tag))
	publish(ctx, a.log, pub, events.Event{Type: events.TypeActivated, Tag: tag, At: time.Now().UTC()})

	fmt.Println(okStyle.Render(fmt.Sprintf("✓ Rule set %s is active", tag)))
	return nil
}
