package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/cli/backups"
	"github.com/julianstephens/streakline/internal/cli/habits"
	"github.com/julianstephens/streakline/internal/cli/settings"
	"github.com/julianstephens/streakline/internal/cli/system"
	"github.com/julianstephens/streakline/internal/config"
	"github.com/julianstephens/streakline/internal/constants"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/storage/sqlite"
)

var CLI struct {
	Version kong.VersionFlag
	DB      string `name:"db" help:"Database path, PostgreSQL connection string, or 'keyring'. PostgreSQL credentials must NOT be embedded in the connection string; use the OS keyring, PGPASSWORD or .pgpass instead." env:"STREAKLINE_DB" default:"${db}"`
	Config  string `help:"Config file path." env:"STREAKLINE_CONFIG" type:"path" default:"${config}"`
	Debug   bool   `help:"Log debug output to stderr." env:"STREAKLINE_DEBUG"`

	Init     system.InitCmd       `cmd:"" help:"Initialize streakline storage."`
	Migrate  system.MigrateCmd    `cmd:"" help:"Run database migrations."`
	Doctor   system.DoctorCmd     `cmd:"" help:"Run health checks and diagnostics."`
	Habit    habits.HabitCmd      `cmd:"" help:"Manage habits and record progress."`
	Today    habits.HabitTodayCmd `cmd:"" help:"Show today's progress for every habit." default:"1"`
	Backup   backups.BackupCmd    `cmd:"" help:"Manage database backups."`
	Keyring  system.KeyringCmd    `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	Settings settings.SettingsCmd `cmd:"" help:"Manage store-wide settings."`
	Daemon   system.DaemonCmd     `cmd:"" help:"Run the background writer that syncs automatic habits."`
	Sync     system.SyncCmd       `cmd:"" help:"Sync automatic habits now."`
	Status   system.StatusCmd     `cmd:"" help:"Show the running daemon's sync status."`
	Widget   system.WidgetCmd     `cmd:"" help:"Render habit cards and the history grid."`
}

// commands that open the store themselves or never touch it
var skipLoad = map[string]bool{
	"init":          true,
	"migrate":       true,
	"doctor":        true,
	"keyring":       true,
	"habit presets": true,
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit progress tracking and streak engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": constants.Version,
			"db":      constants.DefaultDBPath,
			"config":  constants.DefaultConfigFile,
		},
	)

	command := commandPath(ctx.Command())

	if err := logger.Init(logger.Config{
		Debug:     CLI.Debug,
		ConfigDir: config.ExpandPath(constants.DefaultConfigDir),
		Component: component(command),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}

	var opts []sqlite.Option
	if command == "widget" {
		opts = append(opts, sqlite.ReadOnly())
	}
	store, err := cli.OpenStore(CLI.DB, opts...)
	if err != nil {
		apperrors.Fatal(err)
	}

	appCtx := &cli.Context{
		Store:      store,
		Config:     cfg,
		ConfigPath: CLI.Config,
		Debug:      CLI.Debug,
	}

	if !skipLoad[command] {
		if err := store.Load(); err != nil {
			apperrors.Fatal(err)
		}
	}
	defer store.Close()

	logger.Debug("Running command", "command", command, "db", store.GetConfigPath())
	if err := ctx.Run(appCtx); err != nil {
		store.Close()
		apperrors.Fatal(err)
	}
}

// commandPath drops positional placeholders, so "habit complete <habit>"
// becomes "habit complete".
func commandPath(cmd string) string {
	var parts []string
	for _, f := range strings.Fields(cmd) {
		if strings.HasPrefix(f, "<") {
			continue
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, " ")
}

func component(command string) string {
	switch strings.SplitN(command, " ", 2)[0] {
	case "daemon":
		return "daemon"
	case "widget":
		return "widget"
	}
	return "cli"
}
