// Package keyring keeps secrets that must not live in config files or
// connection strings in the OS keyring.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/streakline/internal/constants"
)

// Account names under the streakline keyring service.
const (
	AccountConnection = constants.DefaultKeyringUser
	probeAccount      = "availability-probe"
)

var (
	// ErrNotFound is returned when nothing is stored for an account
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Get returns the secret stored for account.
func Get(account string) (string, error) {
	v, err := keyring.Get(constants.AppName, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

// Set stores value for account, replacing any previous value.
func Set(account, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", account)
	}
	if err := keyring.Set(constants.AppName, account, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", account, err)
	}
	return nil
}

// Delete removes account. A missing account reports ErrNotFound.
func Delete(account string) error {
	if err := keyring.Delete(constants.AppName, account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", account, err)
	}
	return nil
}

// GetConnectionString returns the stored PostgreSQL connection string.
func GetConnectionString() (string, error) {
	return Get(AccountConnection)
}

func SetConnectionString(connStr string) error {
	return Set(AccountConnection, connStr)
}

func DeleteConnectionString() error {
	return Delete(AccountConnection)
}

// Status describes what the keyring holds for streakline.
type Status struct {
	Available     bool
	HasConnection bool
}

// Probe reports keyring availability and whether a connection string is stored.
// A read that fails with anything but "not found" means the keyring is unusable.
func Probe() Status {
	_, err := keyring.Get(constants.AppName, probeAccount)
	st := Status{Available: err == nil || errors.Is(err, keyring.ErrNotFound)}
	if !st.Available {
		return st
	}
	_, err = GetConnectionString()
	st.HasConnection = err == nil
	return st
}
