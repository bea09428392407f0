// Package goal classifies a single day's record against the goal it was written under.
//
// It is the only package that branches on habit kind and quit variant; everything
// else asks it through Variant, Outcome and Status.
package goal

import (
	"fmt"
	"math"

	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
)

// Variant is the tagged classification of a goal configuration.
type Variant int

const (
	BuildBinary Variant = iota
	BuildQuantity
	QuitAbstinence
	QuitLimit
)

func (v Variant) String() string {
	switch v {
	case BuildBinary:
		return "build"
	case BuildQuantity:
		return "build-quantity"
	case QuitAbstinence:
		return "quit-abstinence"
	case QuitLimit:
		return "quit-limit"
	default:
		return "unknown"
	}
}

// VariantOf derives the variant from a goal snapshot. A build goal with no unit or a
// non-positive target degrades to binary completion.
func VariantOf(g models.GoalSnapshot) Variant {
	if g.Kind == models.HabitKindQuit {
		if g.QuitVariant == models.QuitVariantLimit {
			return QuitLimit
		}
		return QuitAbstinence
	}
	if g.GoalUnit != "" && g.GoalUnit != models.GoalUnitNone && g.GoalTarget > 0 {
		return BuildQuantity
	}
	return BuildBinary
}

// Outcome is the three-way state of a day. Pending covers both "no entry" and
// "interaction without an affirmative result"; it is never a success.
type Outcome int

const (
	Pending Outcome = iota
	Success
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Status is the display classification of a day.
type Status int

const (
	StatusIncomplete Status = iota
	StatusMet
	StatusOverLimit
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMet:
		return "met"
	case StatusOverLimit:
		return "over-limit"
	case StatusFailed:
		return "failed"
	default:
		return "incomplete"
	}
}

// Classify returns the outcome of a day. A nil entry (no record for the day) is Pending.
func Classify(e *models.HabitEntry) Outcome {
	if e == nil || e.DeletedAt != nil {
		return Pending
	}
	g := e.Goal
	switch VariantOf(g) {
	case BuildBinary:
		if e.IsCompleted {
			return Success
		}
		return Pending
	case BuildQuantity:
		if e.Progress >= g.GoalTarget {
			return Success
		}
		return Pending
	case QuitAbstinence:
		if e.IsFailed {
			return Failed
		}
		if e.IsCompleted {
			return Success
		}
		return Pending
	case QuitLimit:
		// A limit without a positive ceiling is a configuration error; it never succeeds.
		if g.GoalTarget <= 0 || e.IsFailed || e.Progress > g.GoalTarget {
			return Failed
		}
		return Success
	}
	return Pending
}

// IsDaySuccessful reports whether the entry counts toward a streak.
func IsDaySuccessful(e *models.HabitEntry) bool {
	return Classify(e) == Success
}

// ProgressFraction returns progress toward the goal in [0,1]. For limit habits it is
// the share of the allowance used.
func ProgressFraction(e *models.HabitEntry) float64 {
	if e == nil || e.DeletedAt != nil {
		return 0
	}
	g := e.Goal
	switch VariantOf(g) {
	case BuildQuantity, QuitLimit:
		if g.GoalTarget <= 0 {
			return 1
		}
		return clamp01(e.Progress / g.GoalTarget)
	default:
		if Classify(e) == Success {
			return 1
		}
		return 0
	}
}

// StatusOf returns the display classification used by the widget and CLI.
func StatusOf(e *models.HabitEntry) Status {
	switch Classify(e) {
	case Success:
		return StatusMet
	case Failed:
		if VariantOf(e.Goal) == QuitLimit && !e.IsFailed {
			return StatusOverLimit
		}
		return StatusFailed
	default:
		return StatusIncomplete
	}
}

// Level maps a day to an activity intensity in [0, levels]. A successful day is
// levels. A quantity day short of its target scales into [1, levels-1] with its
// progress so partial effort still shows; every other day is 0.
func Level(e *models.HabitEntry, levels int) int {
	if levels <= 0 {
		return 0
	}
	switch Classify(e) {
	case Success:
		return levels
	case Failed:
		return 0
	}
	if VariantOf(e.Goal) != BuildQuantity || e.Progress <= 0 || e.Goal.GoalTarget <= 0 || levels == 1 {
		return 0
	}
	lvl := int(math.Ceil(e.Progress / e.Goal.GoalTarget * float64(levels-1)))
	if lvl < 1 {
		lvl = 1
	}
	if lvl > levels-1 {
		lvl = levels - 1
	}
	return lvl
}

// CompletedAfterProgress returns the is_completed flag for a quantity entry after its
// progress changed.
func CompletedAfterProgress(g models.GoalSnapshot, progress float64) bool {
	switch VariantOf(g) {
	case BuildQuantity:
		return progress >= g.GoalTarget
	case QuitLimit:
		return g.GoalTarget > 0 && progress <= g.GoalTarget
	case BuildBinary:
		return progress > 0
	default:
		return false
	}
}

// Intent is a discrete user action the presentation layer can send.
type Intent int

const (
	IntentComplete Intent = iota
	IntentFail
	IntentAddProgress
	IntentSetProgress
	IntentReset
)

func (i Intent) String() string {
	switch i {
	case IntentComplete:
		return "complete"
	case IntentFail:
		return "fail"
	case IntentAddProgress:
		return "add-progress"
	case IntentSetProgress:
		return "set-progress"
	case IntentReset:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseIntent parses an intent name as produced by Intent.String.
func ParseIntent(s string) (Intent, error) {
	for _, i := range []Intent{IntentComplete, IntentFail, IntentAddProgress, IntentSetProgress, IntentReset} {
		if i.String() == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown intent %q", s)
}

func (i Intent) MarshalText() ([]byte, error) {
	if i < IntentComplete || i > IntentReset {
		return nil, fmt.Errorf("unknown intent %d", int(i))
	}
	return []byte(i.String()), nil
}

func (i *Intent) UnmarshalText(b []byte) error {
	v, err := ParseIntent(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Accepts reports whether an intent applies to a variant.
func Accepts(v Variant, intent Intent) error {
	switch intent {
	case IntentComplete, IntentReset:
		return nil
	case IntentFail:
		if v == QuitAbstinence || v == QuitLimit {
			return nil
		}
		return apperrors.NotAllowedf("only quit habits can record a failure")
	case IntentAddProgress, IntentSetProgress:
		if v == BuildQuantity || v == QuitLimit {
			return nil
		}
		return apperrors.NotAllowedf("%s habits do not track a quantity", v)
	}
	return apperrors.NotAllowedf("unknown intent %d", intent)
}

// AllowsCompletion reports whether a complete intent may change an existing entry for today.
// An abstinence day that was explicitly failed cannot be completed again the same day.
func AllowsCompletion(existing *models.HabitEntry) error {
	if existing == nil {
		return nil
	}
	if VariantOf(existing.Goal) == QuitAbstinence && existing.IsFailed {
		return apperrors.NotAllowedf("day %s was already recorded as a slip", existing.Day)
	}
	return nil
}

// ApplyComplete marks an entry complete according to its variant. It reports whether
// anything changed, so repeated completions are idempotent.
func ApplyComplete(e *models.HabitEntry) bool {
	before := *e
	switch VariantOf(e.Goal) {
	case BuildQuantity:
		if e.Progress < e.Goal.GoalTarget {
			e.Progress = e.Goal.GoalTarget
		}
		e.IsCompleted = true
	case QuitAbstinence:
		e.IsCompleted = true
		e.IsFailed = false
	case QuitLimit:
		e.IsCompleted = CompletedAfterProgress(e.Goal, e.Progress)
	default:
		e.IsCompleted = true
	}
	return before.Progress != e.Progress || before.IsCompleted != e.IsCompleted || before.IsFailed != e.IsFailed
}

// ApplyFailure marks an entry as an explicit failure.
func ApplyFailure(e *models.HabitEntry) {
	e.IsFailed = true
	e.IsCompleted = false
}

// ApplyProgress sets the entry's progress and recomputes its completion flag.
func ApplyProgress(e *models.HabitEntry, progress float64) {
	if progress < 0 {
		progress = 0
	}
	e.Progress = progress
	e.IsCompleted = CompletedAfterProgress(e.Goal, progress)
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
