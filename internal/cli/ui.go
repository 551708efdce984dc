package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/depsync/pkg/reconcile"
)

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - additions, success
	colorYellow = lipgloss.Color("220") // Amber - warnings, moves
	colorRed    = lipgloss.Color("167") // Soft red - removals, errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

var (
	// styleTitle for section headings.
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// styleAdd for dependency additions.
	styleAdd = lipgloss.NewStyle().Foreground(colorGreen)

	// styleRemove for dependency removals.
	styleRemove = lipgloss.NewStyle().Foreground(colorRed)

	// styleMove for section reclassifications and version updates.
	styleMove = lipgloss.NewStyle().Foreground(colorYellow)

	// styleDim for secondary/muted text.
	styleDim = lipgloss.NewStyle().Foreground(colorDim)

	// styleValue for data values.
	styleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// styleSuccess for success messages.
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// styleWarning for warning messages.
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// renderPlan formats a reconciliation plan for the terminal.
func renderPlan(plan *reconcile.Plan) string {
	var b strings.Builder

	if len(plan.Additions) > 0 {
		b.WriteString(styleTitle.Render("Add") + "\n")
		for _, add := range plan.Additions {
			entry := fmt.Sprintf("+ %s", add.Name)
			switch {
			case add.Workspace:
				entry += " (workspace)"
			case add.Version != "":
				entry += fmt.Sprintf(" = %q", add.Version)
			}
			if add.Section == reconcile.SectionDev {
				entry += styleDim.Render("  [dev-dependencies]")
			}
			b.WriteString("  " + styleAdd.Render(entry) + "\n")
		}
	}

	if len(plan.Removals) > 0 {
		b.WriteString(styleTitle.Render("Remove") + "\n")
		for _, rm := range plan.Removals {
			entry := fmt.Sprintf("- %s", rm.Name)
			if rm.Dev {
				entry += styleDim.Render("  [dev-dependencies]")
			}
			b.WriteString("  " + styleRemove.Render(entry) + "\n")
		}
	}

	if len(plan.Moves) > 0 {
		b.WriteString(styleTitle.Render("Reclassify") + "\n")
		for _, mv := range plan.Moves {
			b.WriteString("  " + styleMove.Render(fmt.Sprintf("~ %s: %s -> %s", mv.Name, mv.From, mv.To)) + "\n")
		}
	}

	if len(plan.Updates) > 0 {
		b.WriteString(styleTitle.Render("Update") + "\n")
		for _, up := range plan.Updates {
			b.WriteString("  " + styleMove.Render(fmt.Sprintf("^ %s: %s -> %s", up.Name, up.From, up.To)) + "\n")
		}
	}

	return b.String()
}

// renderDiagnostics formats the recoverable warnings collected during a
// run, one per line.
func renderDiagnostics(diags []reconcile.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		if d.Name != "" {
			b.WriteString(styleWarning.Render(fmt.Sprintf("! %s: %s", d.Name, d.Reason)) + "\n")
		} else {
			b.WriteString(styleWarning.Render("! "+d.Reason) + "\n")
		}
	}
	return b.String()
}
