package models

// Settings represents store-wide settings. They live in the shared store so that
// every process opening it applies the same calendar policy.
type Settings struct {
	Timezone          string `json:"timezone"`            // IANA timezone name (e.g. "America/New_York", or "Local" for system timezone)
	DefaultWindowDays int    `json:"default_window_days"` // activity series length when a caller does not specify one
}
