package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))

	statusStyles = map[devlog.Status]lipgloss.Style{
		devlog.StatusNew:        lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		devlog.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		devlog.StatusBlocked:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		devlog.StatusInReview:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		devlog.StatusTesting:    lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		devlog.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		devlog.StatusCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func statusText(s devlog.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// printEntries writes one line per entry.
func printEntries(w io.Writer, entries []*devlog.Entry, now time.Time) {
	for _, e := range entries {
		line := fmt.Sprintf("%5d  %-11s %-8s %-8s %s  %s",
			e.ID,
			statusText(e.Status),
			e.Type,
			e.Priority,
			e.Title,
			mutedStyle.Render(keyStyle.Render(e.Key)+" · updated "+humanize.RelTime(e.UpdatedAt, now, "ago", "from now")),
		)
		if e.Archived {
			line += mutedStyle.Render(" [archived]")
		}
		fmt.Fprintln(w, line)
	}
}

// printStats writes the overview counters.
func printStats(w io.Writer, project string, s *devlog.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Devlog overview: "+project))
	fmt.Fprintf(w, "  total %s · open %s · closed %s\n",
		humanize.Comma(int64(s.TotalEntries)), humanize.Comma(int64(s.OpenEntries)), humanize.Comma(int64(s.ClosedEntries)))
	if s.AverageCompletionTime != nil {
		fmt.Fprintf(w, "  average completion %.1f hours\n", *s.AverageCompletionTime)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "status", countLine(devlog.AllStatuses, s.ByStatus))
	fmt.Fprintf(w, "  %-10s %s\n", "type", countLine(devlog.AllTypes, s.ByType))
	fmt.Fprintf(w, "  %-10s %s\n", "priority", countLine(devlog.AllPriorities, s.ByPriority))
}

func countLine[T ~string](order []T, counts map[T]int) string {
	var parts []string
	for _, k := range order {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", k, n))
		}
	}
	if len(parts) == 0 {
		return mutedStyle.Render("none")
	}
	return strings.Join(parts, ", ")
}
