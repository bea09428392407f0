package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/streakline/internal/models"
)

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	db, err := s.db()
	if err != nil {
		return models.Settings{}, err
	}
	return s.getSettings(ctx, db)
}

func (s *Store) getSettings(ctx context.Context, q querier) (models.Settings, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return models.Settings{}, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Settings{}, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return models.Settings{}, err
	}
	if len(values) == 0 {
		return models.Settings{}, fmt.Errorf("settings not found")
	}
	return models.MapToSettings(values)
}

func (s *Store) SaveSettings(ctx context.Context, settings models.Settings) error {
	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.q(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for key, value := range models.SettingsToMap(settings) {
			if _, err := stmt.ExecContext(ctx, key, value); err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		return nil
	})
}
