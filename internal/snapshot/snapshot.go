// Package snapshot builds the read model a renderer shows for one habit.
//
// It is safe to use from a process that does not own the store: every snapshot
// comes from a single read-only transaction and never writes.
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/julianstephens/streakline/internal/calendar"
	"github.com/julianstephens/streakline/internal/constants"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/streak"
)

// Day is one cell of the activity series.
type Day struct {
	Day      string       `json:"day"`
	Outcome  goal.Outcome `json:"-"`
	Status   goal.Status  `json:"-"`
	Level    int          `json:"level"`
	Progress float64      `json:"progress"`
	Fraction float64      `json:"fraction"`
}

// Snapshot is an immutable view of one habit. Found is false when the habit does
// not exist or was deleted; all other fields are then zero.
type Snapshot struct {
	Found         bool         `json:"found"`
	Habit         models.Habit `json:"habit"`
	Variant       goal.Variant `json:"-"`
	Today         string       `json:"today"`
	CurrentStreak int          `json:"current_streak"`
	LongestStreak int          `json:"longest_streak"`
	TodayStatus   goal.Status  `json:"-"`
	TodayProgress float64      `json:"today_progress"`
	TodayFraction float64      `json:"today_fraction"`
	Activity      []Day        `json:"activity"`
	// Duplicates counts days that had more than one live entry; the latest was used.
	Duplicates int       `json:"duplicates,omitempty"`
	TakenAt    time.Time `json:"taken_at"`
}

type Provider struct {
	store       storage.Provider
	cal         *calendar.Normalizer
	defaultDays int
}

// NewProvider returns a Provider. defaultDays is the series length used when a
// caller passes 0; values outside [1, MaxWindowDays] fall back to DefaultWindowDays.
func NewProvider(store storage.Provider, cal *calendar.Normalizer, defaultDays int) *Provider {
	if defaultDays <= 0 || defaultDays > constants.MaxWindowDays {
		defaultDays = constants.DefaultWindowDays
	}
	return &Provider{store: store, cal: cal, defaultDays: defaultDays}
}

// WindowDays clamps a requested series length.
func (p *Provider) WindowDays(days int) int {
	if days <= 0 {
		return p.defaultDays
	}
	if days > constants.MaxWindowDays {
		return constants.MaxWindowDays
	}
	return days
}

// Snapshot reads habitID's last days days, ending today. A missing habit is not an
// error: it yields a Snapshot with Found=false.
func (p *Provider) Snapshot(ctx context.Context, habitID string, days int) (Snapshot, error) {
	days = p.WindowDays(days)
	now := p.cal.Now()
	today := p.cal.DayKey(now)
	start, err := calendar.AddDays(today, -(days - 1))
	if err != nil {
		return Snapshot{}, err
	}

	w, err := p.store.ReadHabitWindow(ctx, habitID, start, today)
	if errors.Is(err, apperrors.ErrNotFound) {
		return Snapshot{Today: today, TakenAt: now}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Build(w.Habit, w.Entries, start, today, p.cal, now), nil
}

// All snapshots every live, unarchived habit. Each habit is read in its own
// transaction, so habits may come from different commits but each is consistent.
func (p *Provider) All(ctx context.Context, days int) ([]Snapshot, error) {
	habits, err := p.store.GetAllHabits(ctx, false, false)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(habits))
	for _, h := range habits {
		s, err := p.Snapshot(ctx, h.ID, days)
		if err != nil {
			return nil, err
		}
		if s.Found {
			out = append(out, s)
		}
	}
	return out, nil
}

// Build derives a snapshot from one consistent read of a habit and its entries in
// [start, today].
func Build(h models.Habit, entries []models.HabitEntry, start, today string, cal *calendar.Normalizer, takenAt time.Time) Snapshot {
	live, dups := streak.Dedupe(entries)
	res := streak.Compute(live, today, streak.OptionsFor(h, cal))
	byDay := make(map[string]models.HabitEntry, len(live))
	for _, e := range live {
		byDay[e.Day] = e
	}

	s := Snapshot{
		Found:      true,
		Habit:      h,
		Variant:    goal.VariantOf(h.Goal()),
		Today:      today,
		Duplicates: len(dups),
		TakenAt:    takenAt,
	}
	s.CurrentStreak, s.LongestStreak = merge(h, res, start, today)

	dayKeys, _ := calendar.Range(start, today)
	s.Activity = make([]Day, 0, len(dayKeys))
	for _, d := range dayKeys {
		var ep *models.HabitEntry
		if e, ok := byDay[d]; ok {
			ep = &e
		}
		cell := Day{
			Day:      d,
			Outcome:  goal.Classify(ep),
			Status:   goal.StatusOf(ep),
			Level:    goal.Level(ep, constants.IntensityLevels),
			Fraction: goal.ProgressFraction(ep),
		}
		if ep != nil {
			cell.Progress = ep.Progress
		}
		s.Activity = append(s.Activity, cell)
	}
	if n := len(s.Activity); n > 0 {
		last := s.Activity[n-1]
		s.TodayStatus, s.TodayProgress, s.TodayFraction = last.Status, last.Progress, last.Fraction
	}
	return s
}

// merge combines the streak derived from the window with the habit's cached
// counters. A run that reaches back to the window's first day may be longer than
// the window shows; the cached value covers the rest.
func merge(h models.Habit, res streak.Result, start, today string) (current, longest int) {
	current = res.Current
	if current > 0 && res.RunStart == start {
		if cached := streak.Display(h.StreakState(), today); cached > current {
			current = cached
		}
	}
	longest = h.LongestStreak
	if res.Longest > longest {
		longest = res.Longest
	}
	if current > longest {
		longest = current
	}
	return current, longest
}
