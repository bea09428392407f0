package system

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/watch"
	"github.com/julianstephens/streakline/internal/widget"
)

// WidgetCmd is the reader process. It opens the store read-only and never takes
// the writer lock.
type WidgetCmd struct {
	Habit string `arg:"" optional:"" help:"Habit name or id (default: every habit)."`
	Days  int    `help:"Activity days to show (default: config widget.days)."`
	Watch bool   `short:"w" help:"Stay open and redraw when the store changes."`
	Line  bool   `help:"Print one summary line per habit, for status bars."`
	Plain bool   `help:"Render without colors."`
}

func (c *WidgetCmd) Run(ctx *cli.Context) error {
	bg, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := ctx.Snapshots(bg)
	if err != nil {
		return err
	}
	days := c.Days
	if days <= 0 {
		days = ctx.Config.Widget.Days
	}
	habitID := ""
	if c.Habit != "" {
		h, err := ctx.ResolveHabit(bg, c.Habit)
		if err != nil {
			return err
		}
		habitID = h.ID
	}

	if !c.Watch {
		snaps, err := widget.Load(bg, p, habitID, days)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No habits found.")
		}
		for _, s := range snaps {
			if c.Line {
				fmt.Println(widget.Line(s))
				continue
			}
			fmt.Println(widget.Render(s, widget.Options{Plain: c.Plain}))
		}
		return nil
	}

	var changes <-chan struct{}
	if path := ctx.Store.GetConfigPath(); !cli.IsPostgres(path) && path != "postgresql" {
		if changes, err = watch.File(bg, path, watch.DefaultDelay); err != nil {
			return err
		}
	}

	_, err = tea.NewProgram(widget.NewModel(p, habitID, days, changes), tea.WithContext(bg)).Run()
	return err
}
