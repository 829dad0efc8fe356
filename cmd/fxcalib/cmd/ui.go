package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rustyeddy/fxcalib/calibration"
	"github.com/rustyeddy/fxcalib/decision"
	"github.com/rustyeddy/fxcalib/store"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6"))

	boxStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#10B981")).
		Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Width(18)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	errStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))
)

func row(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

// renderReport formats a calibration report for the terminal.
func renderReport(rep *calibration.Report) string {
	var b strings.Builder
	lines := []string{
		row("Run", rep.RunID),
		row("Tag", rep.Tag),
		row("Baseline", fmt.Sprintf("%s (%s)", rep.BaselineTag, rep.BaselineSource)),
		row("Dataset", rep.DatasetTag),
		row("Markets", strings.Join(rep.Markets, ", ")),
		row("Candidates", fmt.Sprintf("%d generated, %d refined, %d dropped", rep.Generated, rep.Refined, rep.Dropped)),
		row("Scoring", scoringMethod(rep.MLScoring)),
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n\n")

	if len(rep.Finalists) > 0 {
		b.WriteString(sectionStyle.Render("Finalists"))
		b.WriteString("\n")
		for i, f := range rep.Finalists {
			fmt.Fprintf(&b, "  %2d. %-28s composite %7.3f  exp %6.3f  hit %5.1f%%  tpd %5.2f\n",
				i+1, f.Candidate.ID, f.Metrics.Composite, f.Metrics.Expectancy, f.Metrics.HitRate*100, f.Metrics.TradesPerDay)
		}
		b.WriteString("\n")
	}

	if w := rep.Winner; w != nil {
		title := okStyle.Render("Winner")
		if rep.WinnerFallback {
			title = warnStyle.Render("Winner (no finalist survived Monte Carlo, best expectancy)")
		}
		b.WriteString(title)
		b.WriteString("\n")
		wl := []string{
			row("Candidate", w.Candidate.ID),
			row("Stage", w.Candidate.Meta.Stage),
			row("Expectancy", fmt.Sprintf("%.4f R", w.Metrics.Expectancy)),
			row("Hit rate", fmt.Sprintf("%.1f%%", w.Metrics.HitRate*100)),
			row("Trades/day", fmt.Sprintf("%.2f", w.Metrics.TradesPerDay)),
		}
		if w.Risk.Evaluated {
			wl = append(wl,
				row("P95 drawdown", fmt.Sprintf("%.2f%%", w.Risk.P95DrawdownPct)),
				row("Monthly loss", fmt.Sprintf("%.1f%%", w.Risk.MonthlyLossProb)),
				row("VaR 95", fmt.Sprintf("%.2f%%", w.Risk.VaR95Pct)),
				row("Stress", stressLabel(w.Risk.Survived)),
			)
		}
		b.WriteString(boxStyle.Render(strings.Join(wl, "\n")))
		b.WriteString("\n")
	}

	if len(rep.Timings) > 0 {
		parts := make([]string, 0, len(rep.Timings))
		for _, t := range rep.Timings {
			parts = append(parts, fmt.Sprintf("%s %s", t.Stage, t.Duration.Round(time.Millisecond)))
		}
		b.WriteString(mutedStyle.Render(strings.Join(parts, " · ")))
		b.WriteString("\n")
	}
	return b.String()
}

func scoringMethod(ml bool) string {
	if ml {
		return calibration.MethodML
	}
	return calibration.MethodHeuristic
}

func stressLabel(survived bool) string {
	if survived {
		return okStyle.Render("survived")
	}
	return errStyle.Render("failed")
}

func renderRecords(recs []store.Record) string {
	if len(recs) == 0 {
		return mutedStyle.Render("No rule sets stored.")
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%-4s %-28s %-20s %-24s %s", "ID", "TAG", "SOURCE", "WINDOW", "CREATED")))
	b.WriteString("\n")
	for _, r := range recs {
		marker := " "
		if r.IsActive {
			marker = okStyle.Render("*")
		}
		window := ""
		if !r.PeriodStart.IsZero() {
			window = r.PeriodStart.Format("2006-01-02") + ".." + r.PeriodEnd.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "%-4d %-28s %-20s %-24s %s %s\n",
			r.ID, r.Tag, r.Provenance.SourceTag, window, r.CreatedAt.Format(time.RFC3339), marker)
	}
	return b.String()
}

func renderDecision(tag string, r decision.Result) string {
	style := mutedStyle
	switch {
	case r.Executable():
		style = okStyle
	case r.Blocked:
		style = errStyle
	}
	lines := []string{
		row("Rule set", tag),
		row("Action", style.Render(string(r.Action))),
		row("Confidence", r.Confidence.String()),
		row("Reasons", strings.Join(r.Reasons, ", ")),
	}
	if r.Executable() {
		lines = append(lines,
			row("Entry", r.Entry.String()),
			row("Stop loss", fmt.Sprintf("%s (%s pips)", r.SL, r.SLPips)),
			row("Take profit", fmt.Sprintf("%s (%s pips)", r.TP, r.TPPips)),
			row("Size", r.Size.String()),
			row("Risk", r.RiskPct.String()+"%"),
		)
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
