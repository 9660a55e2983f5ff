// Package tui provides the CLI output surface: styled summaries and a
// per-draw progress bar. Simple and streaming, no full-screen TUI.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  GQFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Generated quantities from existing posterior draws"))
}

// PrintRunInfo summarizes the run configuration before dispatch.
func PrintRunInfo(program string, draws int, jobs int, output string) {
	fmt.Println()
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Program:"), titleStyle.Render(program))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Draws:"), titleStyle.Render(fmt.Sprintf("%d", draws)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Workers:"), titleStyle.Render(fmt.Sprintf("%d", jobs)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Output:"), codeStyle.Render(output))
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
}

// PrintSuccess prints a completion summary.
func PrintSuccess(draws int, failed int, elapsed time.Duration) {
	fmt.Println()
	if failed == 0 {
		fmt.Println(successStyle.Render("  ✓ Complete") +
			mutedStyle.Render(fmt.Sprintf("  %d draws in %s", draws, elapsed.Round(time.Millisecond))))
		return
	}
	fmt.Println(successStyle.Render("  ✓ Complete") +
		mutedStyle.Render(fmt.Sprintf("  %d draws in %s, ", draws, elapsed.Round(time.Millisecond))) +
		accentStyle.Render(fmt.Sprintf("%d failed", failed)))
}

// PrintError prints a run failure.
func PrintError(err error) {
	fmt.Println()
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
}

// ShowProgress creates a progress bar for draw evaluation.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
