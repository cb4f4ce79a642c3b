package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/quorum/internal/run"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	passedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Width(12)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusText(status string) string {
	switch status {
	case run.StatusCompleted:
		return passedStyle.Render(status)
	case run.StatusFailed:
		return failedStyle.Render(status)
	}
	return status
}

func printRun(w io.Writer, r run.Run) {
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintln(w, labelStyle.Render(label)+value)
		}
	}
	fmt.Fprintln(w, headerStyle.Render("run "+r.ID))
	field("status", statusText(r.Status))
	field("output", r.Inputs.OutputType)
	field("round", fmt.Sprintf("%d/%d", r.Round, r.MaxRounds))
	field("error", r.Error)
	field("run dir", r.Dir)
	if len(r.Candidates) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-10s %6s %6s %7s  %s", "CANDIDATE", "ROUND", "SCORE", "PASSED", "FORECAST")))
	for _, c := range run.Rank(r.Candidates) {
		passed := failedStyle.Render(fmt.Sprintf("%7s", "no"))
		if c.Passed {
			passed = passedStyle.Render(fmt.Sprintf("%7s", "yes"))
		}
		line := fmt.Sprintf("%-10s %6d %6.2f %s  %s", c.ID, c.Round, c.Score, passed, c.Forecast.Phase)
		if slices.Contains(r.Selected, c.ID) {
			line = selectedStyle.Render(line) + " *"
		}
		fmt.Fprintln(w, line)
	}
	if top, ok := r.Top(); ok {
		fmt.Fprintln(w)
		field("selected", strings.Join(r.Selected, ", "))
		field("forecast", fmt.Sprintf("%s (%.0f%%) %s", top.Forecast.Phase, top.Forecast.Confidence*100, top.Forecast.Rationale))
		if out, ok := r.Artifacts["output"].(string); ok {
			field("document", out)
		}
	}
}

func printRuns(w io.Writer, runs []run.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-10s  %-6s  %-6s  %s", "RUN", "STATUS", "TYPE", "ROUND", "CREATED")))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-10s  %-6s  %-6s  %s\n",
			r.ID, r.Status, r.Inputs.OutputType, fmt.Sprintf("%d/%d", r.Round, r.MaxRounds),
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}
