package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/streakline/internal/logger"
)

var (
	// ErrNotFound is returned when a habit or entry does not exist or was deleted
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig marks habit or application configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrSourceUnavailable is returned when the automatic data source is denied, undetermined or failing
	ErrSourceUnavailable = errors.New("automatic source unavailable")
	// ErrNotAllowed is returned when an intent does not apply to the habit's variant or tracking mode
	ErrNotAllowed = errors.New("action not allowed")
	// ErrStoreInconsistency marks duplicate or dangling records detected in the store
	ErrStoreInconsistency = errors.New("store inconsistency")
	// ErrWriterLocked is returned when another process already owns the store for writing
	ErrWriterLocked = errors.New("store is locked by another writer")
)

// ConfigError describes a single invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotAllowedf wraps ErrNotAllowed with a formatted reason.
func NotAllowedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotAllowed, fmt.Sprintf(format, args...))
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
