package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/streakline/internal/backup"
	"github.com/julianstephens/streakline/internal/calendar"
	"github.com/julianstephens/streakline/internal/config"
	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/control"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/keyring"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/snapshot"
	"github.com/julianstephens/streakline/internal/source"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/storage/postgres"
	"github.com/julianstephens/streakline/internal/storage/sqlite"
	"github.com/julianstephens/streakline/internal/tracker"
	"github.com/julianstephens/streakline/internal/tracking"
	"github.com/julianstephens/streakline/internal/writerlock"
)

// Stdin is where confirmation prompts read from.
var Stdin io.Reader = os.Stdin

// KeyringDB is the --db value that reads the PostgreSQL connection string from
// the OS keyring.
const KeyringDB = "keyring"

type Context struct {
	Store      storage.Provider
	Config     config.Config
	ConfigPath string
	Debug      bool

	// Source overrides the file source built from Config. Tests set it.
	Source source.Source
	// Now overrides the wall clock of the calendar. Tests set it.
	Now func() time.Time

	cal *calendar.Normalizer
}

// IsPostgres reports whether a --db value names a PostgreSQL database.
func IsPostgres(db string) bool {
	return db == KeyringDB || strings.HasPrefix(db, "postgres://") || strings.HasPrefix(db, "postgresql://")
}

// OpenStore picks the backend for a --db value. PostgreSQL connection strings
// must not embed a password; store one in the keyring and pass --db keyring.
func OpenStore(db string, opts ...sqlite.Option) (storage.Provider, error) {
	switch {
	case db == KeyringDB:
		connStr, err := keyring.GetConnectionString()
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, apperrors.NewConfigError("db", "no connection string in the keyring; run '%s keyring set' first", constants.AppName)
			}
			return nil, fmt.Errorf("failed to read connection string from keyring: %w", err)
		}
		return postgres.New(connStr), nil
	case IsPostgres(db):
		if _, err := postgres.ValidateConnString(db); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, apperrors.NewConfigError("db",
					"connection strings must not embed a password; use the OS keyring (%s keyring set), PGPASSWORD or .pgpass", constants.AppName)
			}
			return nil, apperrors.NewConfigError("db", "%v", err)
		}
		return postgres.New(db), nil
	default:
		return sqlite.NewStore(config.ExpandPath(db), opts...), nil
	}
}

// Calendar returns the normalizer for the store's timezone setting.
func (c *Context) Calendar(ctx context.Context) (*calendar.Normalizer, error) {
	if c.cal != nil {
		return c.cal, nil
	}
	settings, err := c.Store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	models.ApplyDefaultSettings(&settings)
	cal, err := calendar.NewFromTimezone(settings.Timezone)
	if err != nil {
		return nil, err
	}
	if c.Now != nil {
		cal = cal.WithClock(c.Now)
	}
	c.cal = cal
	return cal, nil
}

// AutomaticSource returns the configured automatic feed, or nil when none is set.
func (c *Context) AutomaticSource() source.Source {
	if c.Source != nil {
		return c.Source
	}
	if c.Config.Source.Path == "" {
		return nil
	}
	return source.NewFileSource(config.ExpandPath(c.Config.Source.Path))
}

func (c *Context) Tracker(ctx context.Context) (*tracker.Tracker, error) {
	cal, err := c.Calendar(ctx)
	if err != nil {
		return nil, err
	}
	return tracker.New(c.Store, cal, tracking.NewResolver(c.AutomaticSource())), nil
}

func (c *Context) Snapshots(ctx context.Context) (*snapshot.Provider, error) {
	cal, err := c.Calendar(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := c.Store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return snapshot.NewProvider(c.Store, cal, settings.DefaultWindowDays), nil
}

// ResolveHabit finds a live habit by name, falling back to its id.
func (c *Context) ResolveHabit(ctx context.Context, nameOrID string) (models.Habit, error) {
	h, err := c.Store.GetHabitByName(ctx, nameOrID)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return models.Habit{}, err
	}
	h, err = c.Store.GetHabit(ctx, nameOrID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return models.Habit{}, fmt.Errorf("habit %q: %w", nameOrID, apperrors.ErrNotFound)
		}
		return models.Habit{}, err
	}
	return h, nil
}

// LockPath is the writer lockfile for the current store.
func (c *Context) LockPath() string {
	return writerlock.PathFor(c.Store.GetConfigPath())
}

// Apply runs an intent in this process when no writer is running, and forwards
// it to the running daemon otherwise.
func (c *Context) Apply(ctx context.Context, in tracker.Intent) (control.IntentResponse, error) {
	for attempt := 0; ; attempt++ {
		lock, owner, err := writerlock.Acquire(c.LockPath())
		if err == nil {
			defer release(lock)
			tr, err := c.Tracker(ctx)
			if err != nil {
				return control.IntentResponse{}, err
			}
			res, err := tr.Apply(ctx, in)
			if err != nil {
				return control.IntentResponse{}, err
			}
			return control.ResponseFor(res), nil
		}
		if !errors.Is(err, apperrors.ErrWriterLocked) {
			return control.IntentResponse{}, err
		}
		if owner.Port > 0 {
			client, err := control.NewClient(owner)
			if err != nil {
				return control.IntentResponse{}, err
			}
			logger.Debug("Forwarding intent to writer", "pid", owner.PID, "action", in.Action)
			return client.Apply(ctx, in)
		}
		// another one-shot command holds the lock briefly
		if attempt >= constants.ControlMaxRetries {
			return control.IntentResponse{}, err
		}
		time.Sleep(constants.ControlRetryDelay * time.Duration(attempt+1))
	}
}

// Exclusive runs fn while holding the writer lock. It fails when the daemon owns
// the store.
func (c *Context) Exclusive(fn func() error) error {
	lock, _, err := writerlock.Acquire(c.LockPath())
	if err != nil {
		if errors.Is(err, apperrors.ErrWriterLocked) {
			return fmt.Errorf("%w; stop the daemon first", err)
		}
		return err
	}
	defer release(lock)
	return fn()
}

func release(lock *writerlock.Lock) {
	if err := lock.Release(); err != nil {
		logger.Warn("Failed to release writer lock", "path", lock.Path(), "error", err)
	}
}

// PerformAutomaticBackup creates an automatic backup and silently handles errors
func (c *Context) PerformAutomaticBackup(ctx context.Context) {
	if IsPostgres(c.Store.GetConfigPath()) || c.Store.GetConfigPath() == "postgresql" {
		return
	}
	mgr := backup.NewManager(c.Store.GetConfigPath())
	if _, err := mgr.Create(ctx); err != nil {
		// Log warning but don't interrupt user workflow
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// ParseDay accepts "today", "yesterday" or a YYYY-MM-DD day key. Empty means today.
func ParseDay(cal *calendar.Normalizer, s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return cal.Today(), nil
	case "yesterday":
		return calendar.AddDays(cal.Today(), -1)
	}
	if !calendar.ValidateDay(s) {
		return "", apperrors.NewConfigError("day", "%q is not a YYYY-MM-DD date", s)
	}
	return s, nil
}

// Confirm asks a yes/no question on stdout and reads the answer from Stdin.
func Confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	response, err := bufio.NewReader(Stdin).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
