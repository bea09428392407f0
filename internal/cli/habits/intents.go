package habits

import (
	"context"
	"fmt"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/control"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/tracker"
)

// IntentFlags are shared by every command that records a day.
type IntentFlags struct {
	Day   string `help:"Day to record: today, yesterday or YYYY-MM-DD." default:""`
	Note  string `help:"Optional note for this entry." default:""`
	Force bool   `help:"Write manually even though the automatic source is available."`
}

type HabitCompleteCmd struct {
	Name  string      `arg:"" help:"Habit name or id."`
	Flags IntentFlags `embed:""`
}

func (c *HabitCompleteCmd) Run(ctx *cli.Context) error {
	return apply(ctx, c.Name, goal.IntentComplete, 0, c.Flags)
}

type HabitFailCmd struct {
	Name  string      `arg:"" help:"Habit name or id."`
	Flags IntentFlags `embed:""`
}

func (c *HabitFailCmd) Run(ctx *cli.Context) error {
	return apply(ctx, c.Name, goal.IntentFail, 0, c.Flags)
}

type HabitProgressCmd struct {
	Name   string      `arg:"" help:"Habit name or id."`
	Amount float64     `arg:"" help:"Amount to add (negative to correct)."`
	Flags  IntentFlags `embed:""`
}

func (c *HabitProgressCmd) Run(ctx *cli.Context) error {
	return apply(ctx, c.Name, goal.IntentAddProgress, c.Amount, c.Flags)
}

type HabitSetCmd struct {
	Name   string      `arg:"" help:"Habit name or id."`
	Amount float64     `arg:"" help:"The day's total."`
	Flags  IntentFlags `embed:""`
}

func (c *HabitSetCmd) Run(ctx *cli.Context) error {
	return apply(ctx, c.Name, goal.IntentSetProgress, c.Amount, c.Flags)
}

type HabitResetCmd struct {
	Name string `arg:"" help:"Habit name or id."`
	Yes  bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *HabitResetCmd) Run(ctx *cli.Context) error {
	if !c.Yes && !cli.Confirm(fmt.Sprintf("Reset the current streak of %q? The longest streak is kept.", c.Name)) {
		fmt.Println("Cancelled.")
		return nil
	}
	return apply(ctx, c.Name, goal.IntentReset, 0, IntentFlags{})
}

func apply(ctx *cli.Context, name string, action goal.Intent, amount float64, flags IntentFlags) error {
	bg := context.Background()
	h, err := ctx.ResolveHabit(bg, name)
	if err != nil {
		return err
	}

	in := tracker.Intent{
		Action:  action,
		HabitID: h.ID,
		Amount:  amount,
		Note:    flags.Note,
		Force:   flags.Force,
	}
	if flags.Day != "" {
		cal, err := ctx.Calendar(bg)
		if err != nil {
			return err
		}
		if in.Day, err = cli.ParseDay(cal, flags.Day); err != nil {
			return err
		}
	}

	resp, err := ctx.Apply(bg, in)
	if err != nil {
		return err
	}
	fmt.Println(formatResponse(action, resp))
	return nil
}

func formatResponse(action goal.Intent, resp control.IntentResponse) string {
	if !resp.Changed {
		return fmt.Sprintf("No change: %s (streak %d, best %d)", resp.Habit, resp.Streak, resp.LongestStreak)
	}
	verb := map[goal.Intent]string{
		goal.IntentComplete:    "Completed",
		goal.IntentFail:        "Recorded slip for",
		goal.IntentAddProgress: "Added progress to",
		goal.IntentSetProgress: "Set progress for",
		goal.IntentReset:       "Reset",
	}[action]
	return fmt.Sprintf("✓ %s %s (streak %d, best %d)", verb, resp.Habit, resp.Streak, resp.LongestStreak)
}
