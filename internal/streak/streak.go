// Package streak derives current and longest streaks from a habit's day entries.
package streak

import (
	"sort"
	"time"

	"github.com/julianstephens/streakline/internal/calendar"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/models"
)

// Options narrows which entries count toward a streak.
type Options struct {
	// ResetDay and ResetAt describe the most recent explicit streak reset. Entries
	// on earlier days are ignored; an entry on ResetDay counts only if it was
	// written after ResetAt.
	ResetDay string
	ResetAt  *time.Time
}

// OptionsFor builds Options from a habit's reset marker using the normalizer's calendar.
func OptionsFor(h models.Habit, n *calendar.Normalizer) Options {
	if h.StreakResetAt == nil {
		return Options{}
	}
	return Options{ResetDay: n.DayKey(*h.StreakResetAt), ResetAt: h.StreakResetAt}
}

// Result is the derived streak state as of one day.
type Result struct {
	Current int
	Longest int
	// RunStart is the first day of the current run, empty when Current is 0.
	RunStart string
	// LastSuccessDay is the most recent successful day on or before today.
	LastSuccessDay string
	// LastHandledDay is the most recent day with a success or an explicit failure.
	LastHandledDay string
	// Expired is set when the last run ended more than one day before today.
	Expired      bool
	TodayOutcome goal.Outcome
	Duplicates   []models.DuplicateDay
}

// Compute walks entries once in day order. Entries after today are ignored. A day
// counts only when the goal evaluator reports success for it; a missing day or an
// unsuccessful one ends the run.
//
// The current streak ends at today or yesterday. A pending today (no interaction
// yet) does not break a run that reached yesterday; an explicit failure today does.
func Compute(entries []models.HabitEntry, today string, opts Options) Result {
	days, dups := Dedupe(entries)
	res := Result{Duplicates: dups}

	var (
		run      int
		runStart string
		prev     string
	)
	for _, e := range days {
		if e.Day > today || !counts(e, opts) {
			continue
		}
		outcome := goal.Classify(&e)
		if e.Day == today {
			res.TodayOutcome = outcome
		}
		if outcome == goal.Failed {
			res.LastHandledDay = e.Day
		}
		if outcome != goal.Success {
			continue
		}
		res.LastHandledDay = e.Day

		if prev != "" {
			if gap, err := calendar.DiffDays(prev, e.Day); err == nil && gap == 1 {
				run++
			} else {
				run, runStart = 1, e.Day
			}
		} else {
			run, runStart = 1, e.Day
		}
		prev = e.Day
		if run > res.Longest {
			res.Longest = run
		}
	}

	if prev == "" {
		return res
	}
	res.LastSuccessDay = prev

	gap, err := calendar.DiffDays(prev, today)
	switch {
	case err != nil || gap > 1:
		res.Expired = true
	case gap == 1 && res.TodayOutcome == goal.Failed:
		// failed today after a run that ended yesterday
	default:
		res.Current = run
		res.RunStart = runStart
	}
	return res
}

// Dedupe sorts entries by day and collapses any day with more than one live entry to
// the most recently created one. Collapsed groups are returned so callers can
// report and compact them; no entry is dropped silently.
func Dedupe(entries []models.HabitEntry) ([]models.HabitEntry, []models.DuplicateDay) {
	byDay := make(map[string][]models.HabitEntry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.DeletedAt != nil {
			continue
		}
		key := e.HabitID + "\x00" + e.Day
		if _, ok := byDay[key]; !ok {
			order = append(order, key)
		}
		byDay[key] = append(byDay[key], e)
	}

	out := make([]models.HabitEntry, 0, len(order))
	var dups []models.DuplicateDay
	for _, key := range order {
		group := byDay[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		winner := models.LatestEntry(group)
		dups = append(dups, models.DuplicateDay{HabitID: winner.HabitID, Day: winner.Day, Entries: group})
		logger.Warn("Duplicate entries for one day, using the most recently created",
			"habit_id", winner.HabitID, "day", winner.Day, "count", len(group), "kept", winner.ID)
		out = append(out, winner)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	sort.SliceStable(dups, func(i, j int) bool { return dups[i].Day < dups[j].Day })
	return out, dups
}

func counts(e models.HabitEntry, opts Options) bool {
	if opts.ResetDay == "" {
		return true
	}
	if e.Day < opts.ResetDay {
		return false
	}
	if e.Day == opts.ResetDay && opts.ResetAt != nil {
		return e.UpdatedAt.After(*opts.ResetAt)
	}
	return true
}

// Stored returns the streak state to persist on a habit after a recompute. The
// longest streak is a high-water mark and never decreases here.
func Stored(prev models.StreakState, res Result) models.StreakState {
	longest := prev.LongestStreak
	if res.Longest > longest {
		longest = res.Longest
	}
	if res.Current > longest {
		longest = res.Current
	}
	return models.StreakState{
		Streak:           res.Current,
		LongestStreak:    longest,
		LastCompletedDay: res.LastHandledDay,
		StreakResetAt:    prev.StreakResetAt,
	}
}

// Display returns the streak to show for a habit whose cached counter may be stale.
// An expired streak reads as 0 even before the next write resets the stored value.
func Display(state models.StreakState, today string) int {
	if state.Streak == 0 || state.LastCompletedDay == "" {
		return 0
	}
	gap, err := calendar.DiffDays(state.LastCompletedDay, today)
	if err != nil || gap > 1 || gap < 0 {
		return 0
	}
	return state.Streak
}
