package habits

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/streakline/internal/cli"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/streak"
)

type HabitCmd struct {
	Add       HabitAddCmd       `cmd:"" help:"Add a new habit."`
	Presets   HabitPresetsCmd   `cmd:"" help:"List built-in habit presets."`
	List      HabitListCmd      `cmd:"" help:"List habits."`
	Edit      HabitEditCmd      `cmd:"" help:"Edit a habit's configuration."`
	Complete  HabitCompleteCmd  `cmd:"" help:"Mark a habit as done for a day."`
	Fail      HabitFailCmd      `cmd:"" help:"Record a slip on a quit habit."`
	Progress  HabitProgressCmd  `cmd:"" help:"Add progress to a quantity or limit habit."`
	Set       HabitSetCmd       `cmd:"" help:"Set a day's progress to an exact amount."`
	Reset     HabitResetCmd     `cmd:"" help:"Reset a habit's current streak."`
	Today     HabitTodayCmd     `cmd:"" help:"Show today's habit status."`
	Log       HabitLogCmd       `cmd:"" help:"Show habit log (ASCII history)."`
	Archive   HabitArchiveCmd   `cmd:"" help:"Archive a habit."`
	Unarchive HabitUnarchiveCmd `cmd:"" help:"Unarchive a habit."`
	Delete    HabitDeleteCmd    `cmd:"" help:"Delete a habit (soft delete)."`
	Restore   HabitRestoreCmd   `cmd:"" help:"Restore a deleted habit."`
	Clear     HabitClearCmd     `cmd:"" help:"Permanently clear a habit's history."`
}

type HabitAddCmd struct {
	Name        string  `arg:"" optional:"" help:"Habit name (defaults to the preset's name)."`
	Preset      string  `help:"Start from a built-in preset." placeholder:"KEY"`
	Interactive bool    `short:"i" help:"Fill in the habit with an interactive form."`
	Icon        string  `help:"Optional emoji shown next to the name."`
	Kind        string  `help:"Habit kind: build or quit."`
	Variant     string  `help:"Quit goal: abstinence or limit."`
	Target      float64 `help:"Daily target (build) or ceiling (limit)."`
	Unit        string  `help:"Goal unit, e.g. steps, glasses, cups."`
	Automatic   bool    `help:"Track progress from the automatic source."`
	Metric      string  `help:"Source metric for automatic tracking, e.g. steps."`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	bg := context.Background()

	h := models.Habit{Kind: models.HabitKindBuild}
	if c.Preset != "" {
		p, ok := FindPreset(c.Preset)
		if !ok {
			return apperrors.NewConfigError("preset", "unknown preset %q; see 'habit presets'", c.Preset)
		}
		h = p.Habit()
	}
	c.overlay(&h)

	if c.Interactive {
		fm := formFrom(h)
		if err := newHabitForm(fm).Run(); err != nil {
			return err
		}
		if err := fm.apply(&h); err != nil {
			return err
		}
	}
	if strings.TrimSpace(h.Name) == "" {
		return apperrors.NewConfigError("name", "give the habit a name or pick a preset")
	}

	tr, err := ctx.Tracker(bg)
	if err != nil {
		return err
	}
	created, err := tr.CreateHabit(bg, h)
	if err != nil {
		return err
	}
	fmt.Printf("Added habit: %s (%s)\n", created.Name, Describe(created))
	return nil
}

// overlay applies explicit flags over h.
func (c *HabitAddCmd) overlay(h *models.Habit) {
	if c.Name != "" {
		h.Name = c.Name
	}
	if c.Icon != "" {
		h.Icon = c.Icon
	}
	if c.Kind != "" {
		h.Kind = models.HabitKind(strings.ToLower(c.Kind))
	}
	if c.Variant != "" {
		h.QuitVariant = models.QuitVariant(strings.ToLower(c.Variant))
	}
	if c.Target != 0 {
		h.GoalTarget = c.Target
	}
	if c.Unit != "" {
		h.GoalUnit = models.GoalUnit(strings.ToLower(c.Unit))
	}
	if c.Automatic {
		h.TrackingMode = models.TrackingAutomatic
	}
	if c.Metric != "" {
		h.Metric = c.Metric
	}
}

type HabitPresetsCmd struct{}

func (c *HabitPresetsCmd) Run(ctx *cli.Context) error {
	for _, p := range Presets {
		tracking := ""
		if p.Tracking == models.TrackingAutomatic {
			tracking = " [automatic: " + p.Metric + "]"
		}
		fmt.Printf("  %-12s %s %s (%s)%s\n", p.Key, p.Icon, p.Name, Describe(p.Habit()), tracking)
	}
	return nil
}

type HabitListCmd struct {
	Archived bool `help:"Include archived habits."`
	Deleted  bool `help:"Include deleted habits."`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	habits, err := ctx.Store.GetAllHabits(bg, c.Archived, c.Deleted)
	if err != nil {
		return err
	}
	cal, err := ctx.Calendar(bg)
	if err != nil {
		return err
	}
	today := cal.Today()

	if len(habits) == 0 {
		fmt.Println("No habits found.")
		return nil
	}

	for _, habit := range habits {
		fmt.Println(listLine(habit, today))
	}

	return nil
}

// listLine shows the streak as of today; a run that already lapsed reads 0
// before the next write resets the stored counter.
func listLine(habit models.Habit, today string) string {
	status := ""
	if habit.DeletedAt != nil {
		status = " [DELETED]"
	} else if habit.ArchivedAt != nil {
		status = " [ARCHIVED]"
	}
	if habit.IsAutomatic() {
		status += " [auto: " + habit.Metric + "]"
	}
	return fmt.Sprintf("%s  (%s, streak %d, best %d)%s", habit.Name, Describe(habit),
		streak.Display(habit.StreakState(), today), habit.LongestStreak, status)
}

type HabitEditCmd struct {
	Name        string   `arg:"" help:"Habit name or id."`
	Interactive bool     `short:"i" help:"Edit with an interactive form."`
	Rename      string   `help:"New name."`
	Icon        *string  `help:"New icon (empty to clear)."`
	Target      *float64 `help:"New daily target or ceiling."`
	Unit        string   `help:"New goal unit."`
	Variant     string   `help:"New quit goal: abstinence or limit."`
	Tracking    string   `help:"Tracking mode: manual or automatic."`
	Metric      string   `help:"Source metric for automatic tracking."`
}

func (c *HabitEditCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	h, err := ctx.ResolveHabit(bg, c.Name)
	if err != nil {
		return err
	}

	if c.Rename != "" {
		h.Name = strings.TrimSpace(c.Rename)
	}
	if c.Icon != nil {
		h.Icon = *c.Icon
	}
	if c.Target != nil {
		h.GoalTarget = *c.Target
	}
	if c.Unit != "" {
		h.GoalUnit = models.GoalUnit(strings.ToLower(c.Unit))
	}
	if c.Variant != "" {
		h.QuitVariant = models.QuitVariant(strings.ToLower(c.Variant))
	}
	if c.Tracking != "" {
		h.TrackingMode = models.TrackingMode(strings.ToLower(c.Tracking))
	}
	if c.Metric != "" {
		h.Metric = c.Metric
	}
	if c.Interactive {
		fm := formFrom(h)
		if err := newHabitForm(fm).Run(); err != nil {
			return err
		}
		if err := fm.apply(&h); err != nil {
			return err
		}
	}

	tr, err := ctx.Tracker(bg)
	if err != nil {
		return err
	}
	updated, err := tr.EditHabit(bg, h)
	if err != nil {
		return err
	}
	fmt.Printf("Updated habit: %s (%s)\n", updated.Name, Describe(updated))
	fmt.Println("Days already recorded keep the goal they were scored against.")
	return nil
}

type HabitArchiveCmd struct {
	Name string `arg:"" help:"Habit name or id."`
}

func (c *HabitArchiveCmd) Run(ctx *cli.Context) error {
	return lifecycle(ctx, c.Name, "Archived", func(bg context.Context, id string) error {
		tr, err := ctx.Tracker(bg)
		if err != nil {
			return err
		}
		return tr.ArchiveHabit(bg, id)
	})
}

type HabitUnarchiveCmd struct {
	Name string `arg:"" help:"Habit name or id."`
}

func (c *HabitUnarchiveCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	h, err := findAny(ctx, c.Name, func(h models.Habit) bool { return h.ArchivedAt != nil && h.DeletedAt == nil })
	if err != nil {
		return err
	}
	tr, err := ctx.Tracker(bg)
	if err != nil {
		return err
	}
	if err := tr.UnarchiveHabit(bg, h.ID); err != nil {
		return err
	}
	fmt.Printf("Unarchived habit: %s\n", h.Name)
	return nil
}

type HabitDeleteCmd struct {
	Name string `arg:"" help:"Habit name or id."`
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	return ctx.Exclusive(func() error {
		return lifecycle(ctx, c.Name, "Deleted", func(bg context.Context, id string) error {
			tr, err := ctx.Tracker(bg)
			if err != nil {
				return err
			}
			return tr.DeleteHabit(bg, id)
		})
	})
}

type HabitRestoreCmd struct {
	Name string `arg:"" help:"Habit name or id."`
}

func (c *HabitRestoreCmd) Run(ctx *cli.Context) error {
	return ctx.Exclusive(func() error {
		bg := context.Background()
		h, err := findAny(ctx, c.Name, func(h models.Habit) bool { return h.DeletedAt != nil })
		if err != nil {
			return err
		}
		tr, err := ctx.Tracker(bg)
		if err != nil {
			return err
		}
		if err := tr.RestoreHabit(bg, h.ID); err != nil {
			return err
		}
		if _, err := tr.RecomputeStreak(bg, h.ID); err != nil {
			return err
		}
		fmt.Printf("Restored habit: %s\n", h.Name)
		return nil
	})
}

type HabitClearCmd struct {
	Name string `arg:"" help:"Habit name or id."`
	Yes  bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *HabitClearCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	h, err := ctx.ResolveHabit(bg, c.Name)
	if err != nil {
		return err
	}
	if !c.Yes && !cli.Confirm(fmt.Sprintf("Permanently delete every entry of %q?", h.Name)) {
		fmt.Println("Cancelled.")
		return nil
	}
	return ctx.Exclusive(func() error {
		tr, err := ctx.Tracker(bg)
		if err != nil {
			return err
		}
		n, err := tr.ClearHistory(bg, h.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d entries from %s.\n", n, h.Name)
		return nil
	})
}

func lifecycle(ctx *cli.Context, name, verb string, fn func(context.Context, string) error) error {
	bg := context.Background()
	h, err := ctx.ResolveHabit(bg, name)
	if err != nil {
		return err
	}
	if err := fn(bg, h.ID); err != nil {
		return err
	}
	fmt.Printf("%s habit: %s\n", verb, h.Name)
	return nil
}

// findAny looks through archived and deleted habits too, preferring ones that
// match want.
func findAny(ctx *cli.Context, nameOrID string, want func(models.Habit) bool) (models.Habit, error) {
	all, err := ctx.Store.GetAllHabits(context.Background(), true, true)
	if err != nil {
		return models.Habit{}, err
	}
	var fallback *models.Habit
	for i, h := range all {
		if h.ID != nameOrID && !strings.EqualFold(h.Name, nameOrID) {
			continue
		}
		if want(h) {
			return h, nil
		}
		if fallback == nil {
			fallback = &all[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return models.Habit{}, fmt.Errorf("habit %q: %w", nameOrID, apperrors.ErrNotFound)
}
