package habits

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/streakline/internal/models"
)

type habitForm struct {
	Name      string
	Icon      string
	Kind      models.HabitKind
	Variant   models.QuitVariant
	Unit      models.GoalUnit
	Target    string
	Automatic bool
	Metric    string
}

func newHabitForm(fm *habitForm) *huh.Form {
	unitOptions := make([]huh.Option[models.GoalUnit], 0, len(models.GoalUnits))
	for _, u := range models.GoalUnits {
		label := string(u)
		if u == models.GoalUnitNone {
			label = "none (done / not done)"
		}
		unitOptions = append(unitOptions, huh.NewOption(label, u))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Habit Name").
				Value(&fm.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("habit name cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Icon").
				Description("Optional emoji").
				Value(&fm.Icon),
			huh.NewSelect[models.HabitKind]().
				Title("Kind").
				Options(
					huh.NewOption("Build a habit", models.HabitKindBuild),
					huh.NewOption("Quit a habit", models.HabitKindQuit),
				).
				Value(&fm.Kind),
		),
		huh.NewGroup(
			huh.NewSelect[models.QuitVariant]().
				Title("Quit goal").
				Options(
					huh.NewOption("Abstain completely", models.QuitVariantAbstinence),
					huh.NewOption("Stay under a daily limit", models.QuitVariantLimit),
				).
				Value(&fm.Variant),
		).WithHideFunc(func() bool { return fm.Kind != models.HabitKindQuit }),
		huh.NewGroup(
			huh.NewSelect[models.GoalUnit]().
				Title("Unit").
				Options(unitOptions...).
				Value(&fm.Unit),
			huh.NewInput().
				Title("Daily target").
				Description("Leave empty for a done / not done habit").
				Value(&fm.Target).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
					if err != nil || v < 0 {
						return fmt.Errorf("target must be a non-negative number")
					}
					return nil
				}),
		).WithHideFunc(func() bool {
			return fm.Kind == models.HabitKindQuit && fm.Variant == models.QuitVariantAbstinence
		}),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Track automatically?").
				Description("Progress comes from the configured source instead of manual input").
				Value(&fm.Automatic),
			huh.NewInput().
				Title("Source metric").
				Description("e.g. steps").
				Value(&fm.Metric),
		).WithHideFunc(func() bool { return fm.Kind == models.HabitKindQuit }),
	).WithTheme(huh.ThemeDracula())
}

// apply copies the answers onto h.
func (fm *habitForm) apply(h *models.Habit) error {
	h.Name = fm.Name
	h.Icon = fm.Icon
	h.Kind = fm.Kind
	h.QuitVariant = models.QuitVariantNone
	if fm.Kind == models.HabitKindQuit {
		h.QuitVariant = fm.Variant
	}
	h.GoalUnit = fm.Unit
	h.GoalTarget = 0
	if t := strings.TrimSpace(fm.Target); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fmt.Errorf("invalid target %q: %w", t, err)
		}
		h.GoalTarget = v
	}
	h.TrackingMode = models.TrackingManual
	h.Metric = ""
	if fm.Automatic && fm.Kind == models.HabitKindBuild {
		h.TrackingMode = models.TrackingAutomatic
		h.Metric = strings.TrimSpace(fm.Metric)
	}
	return nil
}

func formFrom(h models.Habit) *habitForm {
	fm := &habitForm{
		Name:      h.Name,
		Icon:      h.Icon,
		Kind:      h.Kind,
		Variant:   h.QuitVariant,
		Unit:      h.GoalUnit,
		Automatic: h.IsAutomatic(),
		Metric:    h.Metric,
	}
	if fm.Kind == "" {
		fm.Kind = models.HabitKindBuild
	}
	if fm.Variant == models.QuitVariantNone {
		fm.Variant = models.QuitVariantAbstinence
	}
	if fm.Unit == "" {
		fm.Unit = models.GoalUnitNone
	}
	if h.GoalTarget > 0 {
		fm.Target = formatAmount(h.GoalTarget)
	}
	return fm
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
