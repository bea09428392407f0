package settings

import (
	"context"
	"fmt"

	"github.com/julianstephens/streakline/internal/calendar"
	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/constants"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
)

// SettingsCmd edits the store-wide settings every process reads.
type SettingsCmd struct {
	List bool `help:"List current settings."`

	Timezone          *string `help:"IANA timezone used to cut days (e.g. Europe/Berlin, or Local)."`
	DefaultWindowDays *int    `help:"Default activity series length for widgets and logs."`
}

func (c *SettingsCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	settings, err := ctx.Store.GetSettings(bg)
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	models.ApplyDefaultSettings(&settings)

	if c.List {
		fmt.Println("Current Settings:")
		fmt.Printf("  Timezone:            %s\n", settings.Timezone)
		fmt.Printf("  Default Window Days: %d\n", settings.DefaultWindowDays)
		return nil
	}

	updated := false
	if c.Timezone != nil {
		if !calendar.ValidateTimezone(*c.Timezone) {
			return apperrors.NewConfigError("timezone", "unknown timezone %q", *c.Timezone)
		}
		settings.Timezone = *c.Timezone
		updated = true
	}
	if c.DefaultWindowDays != nil {
		if *c.DefaultWindowDays < 1 || *c.DefaultWindowDays > constants.MaxWindowDays {
			return apperrors.NewConfigError("default_window_days", "must be between 1 and %d", constants.MaxWindowDays)
		}
		settings.DefaultWindowDays = *c.DefaultWindowDays
		updated = true
	}

	if updated {
		if err := ctx.Store.SaveSettings(bg, settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Println("Settings updated successfully.")
		if c.Timezone != nil {
			fmt.Println("Restart the daemon and widget so they cut days in the new timezone.")
		}
	} else {
		fmt.Println("No changes specified. Use --list to view settings or flags to update them.")
	}

	return nil
}
