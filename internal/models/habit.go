package models

import "time"

type HabitKind string

const (
	HabitKindBuild HabitKind = "build"
	HabitKindQuit  HabitKind = "quit"
)

type QuitVariant string

const (
	QuitVariantNone       QuitVariant = ""
	QuitVariantAbstinence QuitVariant = "abstinence"
	QuitVariantLimit      QuitVariant = "limit"
)

// GoalUnit is the unit a quantity goal is measured in. GoalUnitNone means binary completion.
type GoalUnit string

const (
	GoalUnitNone    GoalUnit = "none"
	GoalUnitCount   GoalUnit = "count"
	GoalUnitSteps   GoalUnit = "steps"
	GoalUnitMinutes GoalUnit = "minutes"
	GoalUnitHours   GoalUnit = "hours"
	GoalUnitGlasses GoalUnit = "glasses"
	GoalUnitCups    GoalUnit = "cups"
	GoalUnitMl      GoalUnit = "ml"
	GoalUnitKm      GoalUnit = "km"
	GoalUnitKcal    GoalUnit = "kcal"
	GoalUnitPages   GoalUnit = "pages"
)

var GoalUnits = []GoalUnit{
	GoalUnitNone, GoalUnitCount, GoalUnitSteps, GoalUnitMinutes, GoalUnitHours,
	GoalUnitGlasses, GoalUnitCups, GoalUnitMl, GoalUnitKm, GoalUnitKcal, GoalUnitPages,
}

type TrackingMode string

const (
	TrackingManual    TrackingMode = "manual"
	TrackingAutomatic TrackingMode = "automatic"
)

// EntrySource records which progress source wrote an entry.
type EntrySource string

const (
	SourceManual    EntrySource = "manual"
	SourceAutomatic EntrySource = "automatic"
	SourceFallback  EntrySource = "fallback" // manual write while the automatic source was unavailable
)

// GoalSnapshot is the goal configuration a day is scored against.
//
// Every HabitEntry carries its own copy, captured when the entry was written, so
// history stays interpretable after the habit's configuration changes. It is not a
// cache of the habit row and must not be refreshed from it.
type GoalSnapshot struct {
	Kind        HabitKind   `json:"habit_type"`
	QuitVariant QuitVariant `json:"quit_variant,omitempty"`
	GoalTarget  float64     `json:"goal_target"`
	GoalUnit    GoalUnit    `json:"goal_unit"`
}

type Habit struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Icon             string       `json:"icon,omitempty"`
	Kind             HabitKind    `json:"kind"`
	QuitVariant      QuitVariant  `json:"quit_variant,omitempty"`
	GoalTarget       float64      `json:"goal_target"`
	GoalUnit         GoalUnit     `json:"goal_unit"`
	TrackingMode     TrackingMode `json:"tracking_mode"`
	Metric           string       `json:"metric,omitempty"` // automatic source metric, e.g. "steps"
	CreatedAt        time.Time    `json:"created_at"`
	Streak           int          `json:"streak"`
	LongestStreak    int          `json:"longest_streak"`
	LastCompletedDay string       `json:"last_completed_day,omitempty"` // YYYY-MM-DD, empty when unset
	StreakResetAt    *time.Time   `json:"streak_reset_at,omitempty"`
	ArchivedAt       *time.Time   `json:"archived_at,omitempty"`
	DeletedAt        *time.Time   `json:"deleted_at,omitempty"`
}

// Goal returns the habit's current goal configuration.
func (h Habit) Goal() GoalSnapshot {
	return GoalSnapshot{
		Kind:        h.Kind,
		QuitVariant: h.QuitVariant,
		GoalTarget:  h.GoalTarget,
		GoalUnit:    h.GoalUnit,
	}
}

func (h Habit) IsAutomatic() bool {
	return h.TrackingMode == TrackingAutomatic
}

// HabitEntry represents a single day's record of a habit
type HabitEntry struct {
	ID          string       `json:"id"`
	HabitID     string       `json:"habit_id"`
	Day         string       `json:"day"` // YYYY-MM-DD format
	Progress    float64      `json:"progress"`
	Goal        GoalSnapshot `json:"goal"`
	IsCompleted bool         `json:"is_completed"`
	IsFailed    bool         `json:"is_failed"` // explicit failure (quit habits)
	Source      EntrySource  `json:"source"`
	Note        string       `json:"note"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
}

// StreakState is the cached streak projection stored on a habit.
type StreakState struct {
	Streak           int
	LongestStreak    int
	LastCompletedDay string
	StreakResetAt    *time.Time
}

func (h Habit) StreakState() StreakState {
	return StreakState{
		Streak:           h.Streak,
		LongestStreak:    h.LongestStreak,
		LastCompletedDay: h.LastCompletedDay,
		StreakResetAt:    h.StreakResetAt,
	}
}
