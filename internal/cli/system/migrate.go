package system

import (
	"fmt"

	"github.com/julianstephens/streakline/internal/cli"
)

// migrator is implemented by both SQL backends.
type migrator interface {
	Migrate(logFn func(string)) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	m, ok := ctx.Store.(migrator)
	if !ok {
		return fmt.Errorf("this store does not support migrations")
	}

	return ctx.Exclusive(func() error {
		count, err := m.Migrate(func(msg string) {
			fmt.Println(msg)
		})
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if count == 0 {
			fmt.Println("No migrations to apply. Database is up to date.")
		} else {
			fmt.Printf("\nSuccessfully applied %d migration(s).\n", count)
		}
		return nil
	})
}
