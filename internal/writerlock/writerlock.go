// Package writerlock enforces a single writer process per store.
//
// The lock is a file next to the database holding "port|pid|secret". The port and
// secret let other processes hand their writes to the owner over the control API.
package writerlock

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/streakline/internal/constants"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/logger"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
)

// Info is the content of a lockfile.
type Info struct {
	Port   int
	PID    int
	Secret string
}

func (i Info) String() string {
	return fmt.Sprintf("%d|%d|%s", i.Port, i.PID, i.Secret)
}

// Lock is a held writer lock.
type Lock struct {
	path string
	info Info
}

// PathFor returns the lockfile path for a store location. Non-file stores (a
// PostgreSQL connection string) lock under the config directory.
func PathFor(storePath string) string {
	if strings.HasPrefix(storePath, "postgres://") || strings.HasPrefix(storePath, "postgresql://") || storePath == "postgresql" {
		return filepath.Join(expandHome(constants.DefaultConfigDir), "postgresql"+constants.WriterLockSuffix)
	}
	return storePath + constants.WriterLockSuffix
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// Acquire takes the writer lock at path. A lock whose owner is no longer running
// is reclaimed. When a live owner holds it, the returned error wraps
// ErrWriterLocked and the owner's Info is returned alongside.
func Acquire(path string) (*Lock, Info, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, Info{}, fmt.Errorf("failed to create lock directory: %w", err)
	}
	secret, err := newSecret()
	if err != nil {
		return nil, Info{}, err
	}
	info := Info{PID: getpidFunc(), Secret: secret}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.WriteString(info.String())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, Info{}, fmt.Errorf("failed to write lockfile: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path, info: info}, info, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, Info{}, fmt.Errorf("failed to create lockfile: %w", err)
		}

		owner, err := Read(path)
		if err == nil {
			return nil, owner, fmt.Errorf("%w (pid %d)", apperrors.ErrWriterLocked, owner.PID)
		}
		logger.Warn("Reclaiming stale writer lock", "path", path, "reason", err)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, Info{}, fmt.Errorf("failed to remove stale lockfile: %w", err)
		}
	}
	return nil, Info{}, fmt.Errorf("%w: lockfile keeps reappearing", apperrors.ErrWriterLocked)
}

// Read parses the lockfile at path and checks that its owner is a live
// streakline process.
func Read(path string) (Info, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Info{}, errors.New("no writer is running")
	}
	info, err := parse(strings.TrimSpace(string(content)))
	if err != nil {
		return Info{}, err
	}

	process, err := findProcessFunc(info.PID)
	if err != nil || process == nil {
		return Info{}, fmt.Errorf("writer process %d is not running", info.PID)
	}
	if !strings.HasPrefix(process.Executable(), constants.AppName) {
		return Info{}, fmt.Errorf("process with PID %d is not %s (is %s)", info.PID, constants.AppName, process.Executable())
	}
	return info, nil
}

func parse(content string) (Info, error) {
	parts := strings.Split(content, "|")
	if len(parts) != 3 {
		return Info{}, errors.New("lockfile is malformed")
	}
	port, err := strconv.Atoi(parts[0])
	if err != nil {
		return Info{}, errors.New("invalid port number in lockfile")
	}
	if port < 0 || port > 65535 {
		return Info{}, fmt.Errorf("port number %d is outside valid range (0-65535)", port)
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil || pid <= 0 {
		return Info{}, errors.New("invalid process ID in lockfile")
	}
	if strings.TrimSpace(parts[2]) == "" {
		return Info{}, errors.New("secret in lockfile is empty")
	}
	return Info{Port: port, PID: pid, Secret: parts[2]}, nil
}

func newSecret() (string, error) {
	b := make([]byte, constants.ControlSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate control secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (l *Lock) Info() Info {
	return l.info
}

func (l *Lock) Path() string {
	return l.path
}

// SetPort records the control API port so other processes can reach the owner.
func (l *Lock) SetPort(port int) error {
	l.info.Port = port
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(l.info.String()), 0o600); err != nil {
		return fmt.Errorf("failed to update lockfile: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to update lockfile: %w", err)
	}
	return nil
}

// Release removes the lockfile if it still belongs to this lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	content, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	info, err := parse(strings.TrimSpace(string(content)))
	if err != nil || info.Secret != l.info.Secret {
		return nil
	}
	return os.Remove(l.path)
}
