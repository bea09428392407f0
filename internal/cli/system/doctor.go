package system

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/streakline/internal/backup"
	"github.com/julianstephens/streakline/internal/calendar"
	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/config"
	"github.com/julianstephens/streakline/internal/keyring"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/validation"
	"github.com/julianstephens/streakline/internal/writerlock"
)

type DoctorCmd struct {
	Fix bool `help:"Compact duplicate and dangling entries and recompute stale streaks."`
}

type checkResult int

const (
	checkOK checkResult = iota
	checkWarn
	checkFail
	checkSkipped
)

func report(name string, res checkResult, detail string) {
	switch res {
	case checkOK:
		fmt.Printf("✓ %s: OK\n", name)
	case checkWarn:
		fmt.Printf("⚠ %s: WARNING\n", name)
	case checkFail:
		fmt.Printf("❌ %s: FAIL\n", name)
	case checkSkipped:
		fmt.Printf("⊘ %s: SKIPPED (database not reachable)\n", name)
		return
	}
	if detail != "" {
		fmt.Printf("   %s\n", detail)
	}
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	bg := context.Background()
	hasError := false
	fail := func(name string, err error) {
		report(name, checkFail, "Error: "+err.Error())
		hasError = true
	}

	// Check 1: Config file parses
	if ctx.ConfigPath != "" {
		if _, err := config.Load(ctx.ConfigPath); err != nil {
			fail("Config file", err)
		} else {
			report("Config file", checkOK, "")
		}
	}

	// Check 2: DB reachable and schema current
	dbReachable := true
	if err := ctx.Store.Load(); err != nil {
		fail("Database and schema", err)
		dbReachable = false
	} else {
		report("Database and schema", checkOK, "")
	}

	// Check 3: Timezone setting
	var cal *calendar.Normalizer
	if dbReachable {
		var err error
		if cal, err = checkTimezone(bg, ctx); err != nil {
			fail("Timezone", err)
		} else {
			report("Timezone", checkOK, fmt.Sprintf("%s, today is %s", cal.Location(), cal.Today()))
		}
	} else {
		report("Timezone", checkSkipped, "")
	}

	// Check 4: Backups present (warning only)
	if msg := checkBackups(ctx); msg != "" {
		report("Backups present", checkWarn, msg)
	} else {
		report("Backups present", checkOK, "")
	}

	// Check 5: Writer lock
	if owner, err := writerlock.Read(ctx.LockPath()); err == nil {
		report("Writer", checkOK, fmt.Sprintf("daemon running (pid %d, control port %d)", owner.PID, owner.Port))
	} else {
		report("Writer", checkOK, "no daemon running")
	}

	// Check 6: Keyring, only relevant for PostgreSQL
	if cli.IsPostgres(ctx.Store.GetConfigPath()) || ctx.Store.GetConfigPath() == "postgresql" {
		st := keyring.Probe()
		switch {
		case !st.Available:
			report("OS keyring", checkWarn, "keyring unavailable; use PGPASSWORD or .pgpass")
		case !st.HasConnection:
			report("OS keyring", checkOK, "no connection string stored")
		default:
			report("OS keyring", checkOK, "connection string stored")
		}
	}

	// Check 7: Data validation
	if dbReachable && cal != nil {
		if err := cmd.checkData(bg, ctx, cal); err != nil {
			hasError = true
		}
	} else {
		report("Data validation", checkSkipped, "")
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	fmt.Println("All diagnostics passed!")
	return nil
}

func checkTimezone(ctx context.Context, c *cli.Context) (*calendar.Normalizer, error) {
	settings, err := c.Store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	models.ApplyDefaultSettings(&settings)
	if !calendar.ValidateTimezone(settings.Timezone) {
		return nil, fmt.Errorf("unknown timezone %q; fix it with 'settings --timezone'", settings.Timezone)
	}
	cal, err := c.Calendar(ctx)
	if err != nil {
		return nil, err
	}
	// an unset RTC reports 1970
	if now := cal.Now(); now.Year() < 2000 {
		return nil, fmt.Errorf("system clock reports %s", now.Format(time.RFC3339))
	}
	return cal, nil
}

func checkBackups(ctx *cli.Context) string {
	path := ctx.Store.GetConfigPath()
	if cli.IsPostgres(path) || path == "postgresql" {
		return ""
	}
	mgr := backup.NewManager(path)
	backups, err := mgr.List()
	if err != nil {
		return err.Error()
	}
	if len(backups) == 0 {
		return fmt.Sprintf("no backups found in %s", mgr.Dir())
	}
	if age := time.Since(backups[0].Timestamp); age > 7*24*time.Hour {
		return fmt.Sprintf("newest backup is %d days old", int(age.Hours()/24))
	}
	return ""
}

func (cmd *DoctorCmd) checkData(ctx context.Context, c *cli.Context, cal *calendar.Normalizer) error {
	v := validation.New(c.Store, cal)
	vr, err := v.Validate(ctx)
	if err != nil {
		report("Data validation", checkFail, "Error: "+err.Error())
		return err
	}
	if !vr.HasConflicts() {
		report("Data validation", checkOK, "")
		return nil
	}

	if !cmd.Fix {
		report("Data validation", checkFail, vr.FormatReport())
		return vr.Err()
	}

	err = c.Exclusive(func() error {
		tr, err := c.Tracker(ctx)
		if err != nil {
			return err
		}
		actions, err := v.AutoFix(ctx, vr, tr)
		for _, a := range actions {
			fmt.Printf("   fixed: %s\n", a.Action)
		}
		return err
	})
	if err != nil {
		report("Data validation", checkFail, "Error: "+err.Error())
		return err
	}

	// fixes only cover what compaction and recompute can repair
	after, err := v.Validate(ctx)
	if err != nil {
		return err
	}
	if after.HasConflicts() {
		report("Data validation", checkFail, after.FormatReport())
		return after.Err()
	}
	report("Data validation", checkOK, "all problems fixed")
	return nil
}
