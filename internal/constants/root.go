package constants

import "time"

const (
	AppName            = "streakline"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/streakline"
	DefaultDBPath      = "~/.config/streakline/streakline.db"
	DefaultConfigFile  = "~/.config/streakline/config.toml"
	Version            = "v0.3.0"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "streakline-"
	BackupFileSuffix = ".db"

	// Writer lock constants
	WriterLockSuffix   = ".writer.lock"
	ControlSecretBytes = 24
	ControlHeader      = "X-Streakline-Secret"
	ControlMaxRetries  = 3
	ControlRetryDelay  = 100 * time.Millisecond

	// Notification constants
	NotificationTimeout = 5 * time.Second

	// Sync constants
	DefaultSyncInterval     = 15 * time.Minute
	MinSyncInterval         = time.Minute
	DefaultFetchTimeout     = 30 * time.Second
	DefaultFetchConcurrency = 4
	DefaultRefreshPerMinute = 6
	DefaultRefreshBurst     = 2

	// Snapshot constants
	DefaultWindowDays = 90
	MaxWindowDays     = 366
	IntensityLevels   = 4
)
