package habits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/snapshot"
	"github.com/julianstephens/streakline/internal/widget"
)

type HabitTodayCmd struct{}

func (c *HabitTodayCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	p, err := ctx.Snapshots(bg)
	if err != nil {
		return err
	}
	snaps, err := p.All(bg, 1)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No habits found.")
		return nil
	}

	fmt.Printf("Habits for %s:\n\n", snaps[0].Today)
	met := 0
	for _, s := range snaps {
		if s.TodayStatus == goal.StatusMet {
			met++
		}
		fmt.Println(widget.Line(s))
	}
	fmt.Printf("\nDone: %d/%d\n", met, len(snaps))
	return nil
}

type HabitLogCmd struct {
	Days  int    `help:"Number of days to show." default:"14"`
	Habit string `help:"Show log for specific habit only."`
	Grid  bool   `help:"Show a calendar grid per habit instead of one row each."`
}

func (c *HabitLogCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	p, err := ctx.Snapshots(bg)
	if err != nil {
		return err
	}

	var snaps []snapshot.Snapshot
	if c.Habit != "" {
		h, err := ctx.ResolveHabit(bg, c.Habit)
		if err != nil {
			return err
		}
		s, err := p.Snapshot(bg, h.ID, c.Days)
		if err != nil {
			return err
		}
		snaps = []snapshot.Snapshot{s}
	} else if snaps, err = p.All(bg, c.Days); err != nil {
		return err
	}

	if len(snaps) == 0 {
		fmt.Println("No habits found.")
		return nil
	}
	if c.Grid {
		for _, s := range snaps {
			fmt.Printf("%s (streak %d, best %d)\n%s\n\n", s.Habit.Name, s.CurrentStreak, s.LongestStreak, widget.Grid(s.Activity, true))
		}
		return nil
	}
	fmt.Print(formatLog(snaps))
	return nil
}

const nameWidth = 20

// formatLog prints one row per habit and one column per day: x for a success,
// ! for a failure and . for a pending day.
func formatLog(snaps []snapshot.Snapshot) string {
	var b strings.Builder
	days := len(snaps[0].Activity)
	fmt.Fprintf(&b, "Habit log (last %d days):\n\n", days)

	b.WriteString(strings.Repeat(" ", nameWidth))
	for _, d := range snaps[0].Activity {
		label := d.Day
		if t, err := time.Parse(constants.DateFormat, d.Day); err == nil {
			label = t.Format("01/02")
		}
		fmt.Fprintf(&b, " %5s", label)
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", nameWidth+6*days))
	b.WriteString("\n")

	for _, s := range snaps {
		b.WriteString(padName(s.Habit.Name))
		for _, d := range s.Activity {
			mark := "."
			switch d.Outcome {
			case goal.Success:
				mark = "x"
			case goal.Failed:
				mark = "!"
			}
			fmt.Fprintf(&b, "  %s   ", mark)
		}
		fmt.Fprintf(&b, "  %d\n", s.CurrentStreak)
	}
	return b.String()
}

func padName(name string) string {
	r := []rune(name)
	if len(r) > nameWidth {
		return string(r[:nameWidth-3]) + "..."
	}
	return name + strings.Repeat(" ", nameWidth-len(r))
}
