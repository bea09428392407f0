package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/config"
	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/storage"
)

type InitCmd struct {
	Force  bool   `help:"Force reset by deleting existing database before initialization."`
	Source string `help:"Source database path or connection string to copy habits and history from."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	return ctx.Exclusive(func() error {
		// If force flag is provided, delete existing database
		if c.Force {
			if err := c.reset(ctx); err != nil {
				return err
			}
		}

		// Initialize destination store
		if err := ctx.Store.Init(); err != nil {
			return err
		}
		fmt.Printf("Initialized %s storage at: %s\n", constants.AppName, ctx.Store.GetConfigPath())

		if err := writeDefaultConfig(ctx.ConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		// If source is provided, migrate data
		if c.Source != "" {
			fmt.Printf("Copying data from: %s\n", c.Source)
			n, err := c.copyFrom(ctx, c.Source)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Copied %d habit(s) successfully!\n", n)
		}
		return nil
	})
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	if cli.IsPostgres(ctx.Store.GetConfigPath()) || ctx.Store.GetConfigPath() == "postgresql" {
		return fmt.Errorf("--force is only supported for SQLite stores")
	}
	dbPath := ctx.Store.GetConfigPath()
	// Don't delete if it's the source (user error protection)
	if c.Source != "" {
		absDB, err1 := filepath.Abs(dbPath)
		absSource, err2 := filepath.Abs(config.ExpandPath(c.Source))
		if err1 == nil && err2 == nil && absDB == absSource {
			return fmt.Errorf("cannot use --force when source and destination are the same: %s", dbPath)
		}
	}
	if _, err := os.Stat(dbPath); err == nil {
		// Database exists, close it first to prevent file locking issues
		if err := ctx.Store.Close(); err != nil {
			return fmt.Errorf("failed to close existing database: %w", err)
		}
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
		}
		fmt.Printf("Deleted existing database at: %s\n", dbPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access existing database: %w", err)
	}
	return nil
}

// copyFrom copies live habits, their entries and cached streaks from another store.
func (c *InitCmd) copyFrom(ctx *cli.Context, src string) (int, error) {
	source, err := cli.OpenStore(src)
	if err != nil {
		return 0, err
	}
	if err := source.Load(); err != nil {
		return 0, fmt.Errorf("failed to open source store: %w", err)
	}
	defer source.Close()
	return copyStore(context.Background(), source, ctx.Store)
}

func copyStore(ctx context.Context, src, dst storage.Provider) (int, error) {
	if settings, err := src.GetSettings(ctx); err == nil {
		if err := dst.SaveSettings(ctx, settings); err != nil {
			return 0, fmt.Errorf("failed to copy settings: %w", err)
		}
	}

	habits, err := src.GetAllHabits(ctx, true, false)
	if err != nil {
		return 0, fmt.Errorf("failed to read source habits: %w", err)
	}
	for _, h := range habits {
		entries, err := src.GetHabitEntriesForHabit(ctx, h.ID, "", "")
		if err != nil {
			return 0, fmt.Errorf("failed to read entries of %q: %w", h.Name, err)
		}
		if err := dst.AddHabit(ctx, h); err != nil {
			return 0, err
		}
		err = dst.UpdateHabitTx(ctx, h.ID, func(tx storage.HabitTx) error {
			for _, e := range entries {
				if err := tx.PutEntry(e); err != nil {
					return err
				}
			}
			return tx.SetStreak(h.StreakState())
		})
		if err != nil {
			return 0, fmt.Errorf("failed to copy entries of %q: %w", h.Name, err)
		}
	}
	return len(habits), nil
}

// writeDefaultConfig creates the config file with defaults when none exists.
func writeDefaultConfig(path string) error {
	if path == "" {
		return nil
	}
	path = config.ExpandPath(path)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("could not write default config: %w", err)
	}
	fmt.Printf("Wrote default config to: %s\n", path)
	return nil
}
