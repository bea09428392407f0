package storage

import (
	"context"

	"github.com/julianstephens/streakline/internal/models"
)

// Provider is the durable habit store shared by the writer process and any number
// of read-only consumers. Every data method is safe for concurrent use.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Settings
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error

	// Habits
	AddHabit(ctx context.Context, habit models.Habit) error
	GetHabit(ctx context.Context, id string) (models.Habit, error)
	GetHabitByName(ctx context.Context, name string) (models.Habit, error)
	GetAllHabits(ctx context.Context, includeArchived, includeDeleted bool) ([]models.Habit, error)
	UpdateHabit(ctx context.Context, habit models.Habit) error
	ArchiveHabit(ctx context.Context, id string) error
	UnarchiveHabit(ctx context.Context, id string) error
	// DeleteHabit soft-deletes the habit and every live entry it owns.
	DeleteHabit(ctx context.Context, id string) error
	// RestoreHabit undoes DeleteHabit, including the cascaded entries.
	RestoreHabit(ctx context.Context, id string) error

	// Habit entries
	GetHabitEntry(ctx context.Context, habitID, day string) (models.HabitEntry, error)
	GetHabitEntriesForDay(ctx context.Context, day string) ([]models.HabitEntry, error)
	// GetHabitEntriesForHabit returns live entries in [startDay, endDay] ordered by
	// day. An empty bound is open.
	GetHabitEntriesForHabit(ctx context.Context, habitID, startDay, endDay string) ([]models.HabitEntry, error)
	// ClearHabitEntries permanently removes a habit's history.
	ClearHabitEntries(ctx context.Context, habitID string) (int64, error)

	// UpdateHabitTx runs fn inside one write transaction scoped to a habit. Either
	// everything fn writes commits, or nothing does.
	UpdateHabitTx(ctx context.Context, habitID string, fn func(tx HabitTx) error) error

	// ReadHabitWindow reads a habit and its entries in [startDay, endDay] from a
	// single read snapshot.
	ReadHabitWindow(ctx context.Context, habitID, startDay, endDay string) (HabitWindow, error)

	// Integrity
	FindDuplicateEntries(ctx context.Context) ([]models.DuplicateDay, error)
	FindDanglingEntries(ctx context.Context) ([]models.HabitEntry, error)
	Compact(ctx context.Context) (CompactReport, error)

	// Utils
	GetConfigPath() string
}

// HabitTx is the habit-scoped view handed to UpdateHabitTx.
type HabitTx interface {
	Habit() models.Habit
	// Entry returns the live entry for day, or nil when there is none.
	Entry(day string) (*models.HabitEntry, error)
	Entries(startDay, endDay string) ([]models.HabitEntry, error)
	// PutEntry inserts or updates the single entry for (habit, day).
	PutEntry(entry models.HabitEntry) error
	SetStreak(state models.StreakState) error
}

// HabitWindow is a consistent read of one habit.
type HabitWindow struct {
	Habit    models.Habit
	Entries  []models.HabitEntry
	Settings models.Settings
}

// CompactReport summarizes a corrective compaction.
type CompactReport struct {
	DuplicatesRemoved int64
	DanglingRemoved   int64
}
