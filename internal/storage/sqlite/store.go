package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/migration"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage/sqldb"
	"github.com/julianstephens/streakline/migrations"
)

// Store is the SQLite-backed provider. The writer opens the file in WAL mode
// with immediate transactions; readers open it query-only and never run
// migrations.
type Store struct {
	*sqldb.Store
	path     string
	readOnly bool
}

type Option func(*Store)

// ReadOnly opens the database for a reader process such as the widget.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		Store: sqldb.New(sqldb.SQLite),
		path:  path,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if s.readOnly {
		q.Add("_pragma", "query_only(1)")
	} else {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		q.Set("_txlock", "immediate")
	}
	return s.path + "?" + q.Encode()
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.DB = db
	return nil
}

func (s *Store) Init() error {
	if s.readOnly {
		return fmt.Errorf("cannot initialize a read-only store")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if s.DB == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	if err := s.runMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx := context.Background()
	settings, err := s.GetSettings(ctx)
	if err != nil || settings.Timezone == "" || settings.DefaultWindowDays <= 0 {
		models.ApplyDefaultSettings(&settings)
		if err := s.SaveSettings(ctx, settings); err != nil {
			return fmt.Errorf("failed to save default settings: %w", err)
		}
	}
	return nil
}

func (s *Store) Load() error {
	if s.DB != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run '%s init' first", constants.AppName)
	}

	if err := s.open(); err != nil {
		return err
	}

	if err := s.validateSchemaVersion(); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	if s.DB != nil {
		err := s.DB.Close()
		s.DB = nil
		return err
	}
	return nil
}

// Migrate applies pending migrations to an existing database.
func (s *Store) Migrate(logFn func(string)) (int, error) {
	if s.readOnly {
		return 0, fmt.Errorf("cannot migrate a read-only store")
	}
	if s.DB == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	return s.runner().ApplyMigrations(logFn)
}

func (s *Store) runner() *migration.Runner {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		// the embedded tree is fixed at build time
		panic(fmt.Sprintf("sqlite migrations: %v", err))
	}
	return migration.NewRunner(s.DB, subFS, migration.DriverSQLite)
}

func (s *Store) runMigrations() error {
	_, err := s.runner().ApplyMigrations(func(msg string) {
		logger.Info(msg)
	})
	return err
}

func (s *Store) validateSchemaVersion() error {
	return s.runner().ValidateVersion()
}

func (s *Store) GetConfigPath() string {
	return s.path
}

// GetDB returns the underlying database connection.
// Returns nil if the database has not been initialized or loaded.
func (s *Store) GetDB() *sql.DB {
	return s.DB
}
