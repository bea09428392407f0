package constants

const (
	// Store-wide settings (shared by every process that opens the store)
	SettingTimezone          = "timezone"
	SettingDefaultWindowDays = "default_window_days"

	// Default Settings Values
	DefaultTimezone = "Local" // Use system local timezone by default
)
