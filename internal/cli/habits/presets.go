package habits

import (
	"strings"

	"github.com/julianstephens/streakline/internal/models"
)

// Preset is a ready-made habit configuration.
type Preset struct {
	Key         string
	Name        string
	Icon        string
	Kind        models.HabitKind
	QuitVariant models.QuitVariant
	Target      float64
	Unit        models.GoalUnit
	Tracking    models.TrackingMode
	Metric      string
}

var Presets = []Preset{
	{Key: "exercise", Name: "Exercise", Icon: "🏃", Kind: models.HabitKindBuild, Unit: models.GoalUnitNone, Tracking: models.TrackingManual},
	{Key: "steps", Name: "Steps", Icon: "👟", Kind: models.HabitKindBuild, Target: 8000, Unit: models.GoalUnitSteps, Tracking: models.TrackingAutomatic, Metric: "steps"},
	{Key: "water", Name: "Water", Icon: "💧", Kind: models.HabitKindBuild, Target: 8, Unit: models.GoalUnitGlasses, Tracking: models.TrackingManual},
	{Key: "read", Name: "Read", Icon: "📖", Kind: models.HabitKindBuild, Target: 20, Unit: models.GoalUnitPages, Tracking: models.TrackingManual},
	{Key: "meditate", Name: "Meditate", Icon: "🧘", Kind: models.HabitKindBuild, Target: 10, Unit: models.GoalUnitMinutes, Tracking: models.TrackingManual},
	{Key: "no-smoking", Name: "No smoking", Icon: "🚭", Kind: models.HabitKindQuit, QuitVariant: models.QuitVariantAbstinence, Unit: models.GoalUnitNone, Tracking: models.TrackingManual},
	{Key: "coffee", Name: "Coffee", Icon: "☕", Kind: models.HabitKindQuit, QuitVariant: models.QuitVariantLimit, Target: 2, Unit: models.GoalUnitCups, Tracking: models.TrackingManual},
}

// FindPreset looks a preset up by key or display name, ignoring case.
func FindPreset(key string) (Preset, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range Presets {
		if p.Key == key || strings.ToLower(p.Name) == key {
			return p, true
		}
	}
	return Preset{}, false
}

func (p Preset) Habit() models.Habit {
	return models.Habit{
		Name:         p.Name,
		Icon:         p.Icon,
		Kind:         p.Kind,
		QuitVariant:  p.QuitVariant,
		GoalTarget:   p.Target,
		GoalUnit:     p.Unit,
		TrackingMode: p.Tracking,
		Metric:       p.Metric,
	}
}

// Describe renders the goal in a few words, e.g. "build · 8 glasses".
func Describe(h models.Habit) string {
	switch {
	case h.Kind == models.HabitKindQuit && h.QuitVariant == models.QuitVariantLimit:
		return "quit · at most " + formatAmount(h.GoalTarget) + " " + string(h.GoalUnit)
	case h.Kind == models.HabitKindQuit:
		return "quit · abstain"
	case h.GoalUnit != "" && h.GoalUnit != models.GoalUnitNone && h.GoalTarget > 0:
		return "build · " + formatAmount(h.GoalTarget) + " " + string(h.GoalUnit)
	default:
		return "build · daily"
	}
}
