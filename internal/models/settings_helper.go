package models

import (
	"fmt"

	"github.com/julianstephens/streakline/internal/constants"
)

// MapToSettings converts a map of key-value pairs to a Settings struct.
func MapToSettings(data map[string]string) (Settings, error) {
	settings := Settings{}

	for key, value := range data {
		switch key {
		case constants.SettingTimezone:
			settings.Timezone = value
		case constants.SettingDefaultWindowDays:
			if _, err := fmt.Sscanf(value, "%d", &settings.DefaultWindowDays); err != nil {
				return Settings{}, fmt.Errorf("parsing default_window_days: %w", err)
			}
		}
	}
	return settings, nil
}

// SettingsToMap converts a Settings struct to a map of key-value pairs.
func SettingsToMap(settings Settings) map[string]string {
	return map[string]string{
		constants.SettingTimezone:          settings.Timezone,
		constants.SettingDefaultWindowDays: fmt.Sprintf("%d", settings.DefaultWindowDays),
	}
}

// ApplyDefaultSettings applies default values to missing settings.
func ApplyDefaultSettings(settings *Settings) {
	if settings.Timezone == "" {
		settings.Timezone = constants.DefaultTimezone
	}
	if settings.DefaultWindowDays <= 0 {
		settings.DefaultWindowDays = constants.DefaultWindowDays
	}
}
