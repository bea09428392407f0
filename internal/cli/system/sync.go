package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/control"
	"github.com/julianstephens/streakline/internal/coordinator"
	"github.com/julianstephens/streakline/internal/writerlock"
)

// SyncCmd runs one reconciliation cycle, or asks the running daemon for one.
type SyncCmd struct {
	JSON bool `help:"Print the cycle report as JSON."`
}

func (c *SyncCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	if owner, err := writerlock.Read(ctx.LockPath()); err == nil && owner.Port > 0 {
		client, err := control.NewClient(owner)
		if err != nil {
			return err
		}
		if err := client.Refresh(bg); err != nil {
			if errors.Is(err, coordinator.ErrRefreshThrottled) {
				return fmt.Errorf("the daemon refreshed recently; try again shortly")
			}
			return err
		}
		fmt.Println("Refresh queued on the running daemon.")
		return nil
	}

	return ctx.Exclusive(func() error {
		tr, err := ctx.Tracker(bg)
		if err != nil {
			return err
		}
		coord := coordinator.New(ctx.Store, tr, syncConfig(ctx.Config), nil)
		defer coord.Close()

		rep := coord.SyncOnce(bg, coordinator.TriggerManual)
		if c.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
		} else {
			printReport(rep)
		}
		if rep.State == coordinator.StateFailed {
			return fmt.Errorf("sync failed for every automatic habit")
		}
		return nil
	})
}

func printReport(rep coordinator.Report) {
	if rep.Habits == 0 {
		fmt.Println("No automatic habits to sync.")
		return
	}
	fmt.Printf("Synced %d habit(s) over %d day(s) in %s: %d created, %d updated, %d unchanged\n",
		rep.Habits, len(rep.Days), rep.Finished.Sub(rep.Started).Round(time.Millisecond),
		rep.Created, rep.Updated, rep.Skipped)
	ids := make([]string, 0, len(rep.Failures))
	for id := range rep.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  ❌ %s: %s\n", id, rep.Failures[id])
	}
}

// StatusCmd shows the running daemon's sync status.
type StatusCmd struct {
	JSON bool `help:"Print the status as JSON."`
}

func (c *StatusCmd) Run(ctx *cli.Context) error {
	owner, err := writerlock.Read(ctx.LockPath())
	if err != nil || owner.Port == 0 {
		fmt.Println("No daemon is running.")
		return nil
	}
	client, err := control.NewClient(owner)
	if err != nil {
		return err
	}
	st, err := client.Status(context.Background())
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Printf("Daemon pid %d: %s, %d cycle(s)\n", owner.PID, st.State, st.Cycles)
	if st.LastSyncTime != nil {
		fmt.Printf("Last sync: %s\n", st.LastSyncTime.Local().Format("2006-01-02 15:04:05"))
	}
	if st.LastReport != nil {
		printReport(*st.LastReport)
	}
	return nil
}
