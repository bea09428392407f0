// Package widget renders habit snapshots for a terminal or a status bar host.
package widget

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/snapshot"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	streakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	metStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	// indexed by intensity level
	levelColors = []lipgloss.Color{"237", "22", "28", "34", "46"}
)

const cell = "■"

// Options controls rendering.
type Options struct {
	Width int
	// Plain drops colors and borders for hosts that cannot render ANSI.
	Plain bool
}

// Render draws one habit card: header, today's progress and the activity grid.
func Render(s snapshot.Snapshot, opts Options) string {
	if !s.Found {
		return mutedStyle.Render("habit not found")
	}
	width := opts.Width
	if width <= 0 {
		width = 40
	}

	var b strings.Builder
	b.WriteString(header(s, width))
	b.WriteString("\n")
	b.WriteString(today(s, width, opts.Plain))
	b.WriteString("\n")
	b.WriteString(Grid(s.Activity, opts.Plain))

	out := b.String()
	if opts.Plain {
		return out
	}
	return cardStyle.Render(out)
}

func header(s snapshot.Snapshot, width int) string {
	name := s.Habit.Name
	if s.Habit.Icon != "" {
		name = s.Habit.Icon + " " + name
	}
	right := fmt.Sprintf("streak %d · best %d", s.CurrentStreak, s.LongestStreak)
	gap := width - lipgloss.Width(name) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return titleStyle.Render(name) + strings.Repeat(" ", gap) + streakStyle.Render(right)
}

func today(s snapshot.Snapshot, width int, plain bool) string {
	label := statusLabel(s)
	switch s.Variant {
	case goal.BuildQuantity, goal.QuitLimit:
		amount := fmt.Sprintf("%s/%s %s", formatAmount(s.TodayProgress), formatAmount(s.Habit.GoalTarget), s.Habit.GoalUnit)
		if plain {
			return fmt.Sprintf("%s  %s", amount, label)
		}
		barWidth := width - lipgloss.Width(amount) - lipgloss.Width(label) - 4
		if barWidth < 10 {
			barWidth = 10
		}
		bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth), progress.WithoutPercentage())
		if s.Variant == goal.QuitLimit {
			bar = progress.New(progress.WithGradient("#5A56E0", "#FF5F5F"), progress.WithWidth(barWidth), progress.WithoutPercentage())
		}
		return fmt.Sprintf("%s  %s  %s", bar.ViewAs(s.TodayFraction), amount, label)
	default:
		return label
	}
}

func statusLabel(s snapshot.Snapshot) string {
	switch s.TodayStatus {
	case goal.StatusMet:
		return metStyle.Render("done today")
	case goal.StatusOverLimit:
		return failedStyle.Render("over limit")
	case goal.StatusFailed:
		return failedStyle.Render("slipped today")
	default:
		if s.Variant == goal.QuitAbstinence {
			return mutedStyle.Render("not checked in")
		}
		return mutedStyle.Render("not done yet")
	}
}

func formatAmount(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.1f", f)
}

// Grid lays the series out week by week, one row per weekday starting Monday.
func Grid(days []snapshot.Day, plain bool) string {
	if len(days) == 0 {
		return ""
	}
	first, err := time.Parse(constants.DateFormat, days[0].Day)
	if err != nil {
		return ""
	}
	offset := (int(first.Weekday()) + 6) % 7
	cols := (offset + len(days) + 6) / 7

	rows := make([][]string, 7)
	for r := range rows {
		rows[r] = make([]string, cols)
		for c := range rows[r] {
			rows[r][c] = " "
		}
	}
	for i, d := range days {
		pos := offset + i
		rows[pos%7][pos/7] = renderCell(d, plain)
	}

	lines := make([]string, 7)
	for r := range rows {
		lines[r] = strings.Join(rows[r], " ")
	}
	return strings.Join(lines, "\n")
}

func renderCell(d snapshot.Day, plain bool) string {
	if plain {
		switch {
		case d.Outcome == goal.Failed:
			return "x"
		case d.Level == 0:
			return "."
		case d.Level >= constants.IntensityLevels:
			return "#"
		default:
			return "+"
		}
	}
	if d.Outcome == goal.Failed {
		return failedStyle.Render(cell)
	}
	lvl := d.Level
	if lvl >= len(levelColors) {
		lvl = len(levelColors) - 1
	}
	return lipgloss.NewStyle().Foreground(levelColors[lvl]).Render(cell)
}

// Line renders a one-line summary for status bars.
func Line(s snapshot.Snapshot) string {
	if !s.Found {
		return "habit not found"
	}
	mark := "○"
	switch s.TodayStatus {
	case goal.StatusMet:
		mark = "✓"
	case goal.StatusFailed, goal.StatusOverLimit:
		mark = "✗"
	}
	out := fmt.Sprintf("%s %s %d", mark, s.Habit.Name, s.CurrentStreak)
	if s.Habit.GoalUnit != models.GoalUnitNone && (s.Variant == goal.BuildQuantity || s.Variant == goal.QuitLimit) {
		out += fmt.Sprintf(" (%s/%s)", formatAmount(s.TodayProgress), formatAmount(s.Habit.GoalTarget))
	}
	return out
}
