package models

// DuplicateDay groups entries that share one (habit, day) pair. It should never
// exist under correct operation; doctor reports it and compaction resolves it.
type DuplicateDay struct {
	HabitID string
	Day     string
	Entries []HabitEntry
}

// Winner returns the entry readers treat as authoritative: the most recently
// created one, with updated_at and then id as tie-breakers.
func (d DuplicateDay) Winner() HabitEntry {
	return LatestEntry(d.Entries)
}

// LatestEntry picks the most recently created entry deterministically.
func LatestEntry(entries []HabitEntry) HabitEntry {
	var best HabitEntry
	for i, e := range entries {
		if i == 0 || newerThan(e, best) {
			best = e
		}
	}
	return best
}

func newerThan(a, b HabitEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
