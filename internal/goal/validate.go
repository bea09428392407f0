package goal

import (
	"math"
	"slices"
	"strings"

	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
)

// Validate checks a habit's goal configuration. It runs once when a habit is
// created or edited; the evaluator never re-reports these problems on read.
func Validate(h models.Habit) error {
	if strings.TrimSpace(h.Name) == "" {
		return apperrors.NewConfigError("name", "must not be empty")
	}

	switch h.Kind {
	case models.HabitKindBuild:
		if h.QuitVariant != models.QuitVariantNone {
			return apperrors.NewConfigError("quit_variant", "only quit habits have a variant")
		}
	case models.HabitKindQuit:
		if h.QuitVariant != models.QuitVariantAbstinence && h.QuitVariant != models.QuitVariantLimit {
			return apperrors.NewConfigError("quit_variant", "quit habits must be %q or %q", models.QuitVariantAbstinence, models.QuitVariantLimit)
		}
	default:
		return apperrors.NewConfigError("kind", "unknown habit kind %q", h.Kind)
	}

	if math.IsNaN(h.GoalTarget) || math.IsInf(h.GoalTarget, 0) {
		return apperrors.NewConfigError("goal_target", "must be a finite number")
	}
	if h.GoalTarget < 0 {
		return apperrors.NewConfigError("goal_target", "must not be negative (got %g)", h.GoalTarget)
	}

	unit := h.GoalUnit
	if unit == "" {
		unit = models.GoalUnitNone
	}
	if !slices.Contains(models.GoalUnits, unit) {
		return apperrors.NewConfigError("goal_unit", "unknown unit %q", h.GoalUnit)
	}
	if unit == models.GoalUnitNone && h.GoalTarget > 0 {
		return apperrors.NewConfigError("goal_unit", "a goal target of %g needs a unit", h.GoalTarget)
	}

	if h.Kind == models.HabitKindQuit && h.QuitVariant == models.QuitVariantLimit {
		if h.GoalTarget <= 0 {
			return apperrors.NewConfigError("goal_target", "limit habits need a positive ceiling")
		}
		if unit == models.GoalUnitNone {
			return apperrors.NewConfigError("goal_unit", "limit habits need a unit")
		}
	}

	switch h.TrackingMode {
	case models.TrackingManual:
	case models.TrackingAutomatic:
		if strings.TrimSpace(h.Metric) == "" {
			return apperrors.NewConfigError("metric", "automatic habits need a source metric")
		}
		if VariantOf(h.Goal()) == QuitAbstinence {
			return apperrors.NewConfigError("tracking_mode", "abstinence habits are scored by an explicit action and cannot be automatic")
		}
	default:
		return apperrors.NewConfigError("tracking_mode", "unknown tracking mode %q", h.TrackingMode)
	}
	return nil
}
