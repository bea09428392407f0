package writerlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	ps "github.com/mitchellh/go-ps"

	apperrors "github.com/julianstephens/streakline/internal/errors"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

func mockProcesses(t *testing.T, alive map[int]string) {
	t.Helper()
	oldFind, oldPid := findProcessFunc, getpidFunc
	t.Cleanup(func() { findProcessFunc, getpidFunc = oldFind, oldPid })
	findProcessFunc = func(pid int) (ps.Process, error) {
		if exe, ok := alive[pid]; ok {
			return &mockProcess{pid: pid, executable: exe}, nil
		}
		return nil, nil
	}
}

func TestAcquireAndRelease(t *testing.T) {
	mockProcesses(t, map[int]string{100: "streakline"})
	getpidFunc = func() int { return 100 }
	path := filepath.Join(t.TempDir(), "streakline.db.writer.lock")

	lock, info, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if info.PID != 100 || len(info.Secret) != 48 {
		t.Errorf("info = %+v", info)
	}

	getpidFunc = func() int { return 200 }
	_, owner, err := Acquire(path)
	if !errors.Is(err, apperrors.ErrWriterLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrWriterLocked", err)
	}
	if owner.Secret != info.Secret {
		t.Errorf("owner secret = %q, want %q", owner.Secret, info.Secret)
	}

	if err := lock.SetPort(4321); err != nil {
		t.Fatalf("SetPort() error = %v", err)
	}
	read, err := Read(path)
	if err != nil || read.Port != 4321 {
		t.Errorf("Read() = %+v, %v", read, err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lockfile still present after Release: %v", err)
	}
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	tests := []struct {
		name    string
		content string
		alive   map[int]string
	}{
		{"dead pid", "0|4242|abc", map[int]string{}},
		{"pid reused by other program", "0|4242|abc", map[int]string{4242: "vim"}},
		{"malformed", "garbage", map[int]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockProcesses(t, tt.alive)
			getpidFunc = func() int { return 100 }
			path := filepath.Join(t.TempDir(), "db.writer.lock")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			lock, _, err := Acquire(path)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if lock.Info().PID != 100 {
				t.Errorf("lock pid = %d", lock.Info().PID)
			}
		})
	}
}

func TestReleaseLeavesForeignLock(t *testing.T) {
	mockProcesses(t, map[int]string{100: "streakline"})
	getpidFunc = func() int { return 100 }
	path := filepath.Join(t.TempDir(), "db.writer.lock")
	lock, _, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("0|300|other"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("foreign lockfile removed: %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"8080|123|s3cret", false},
		{"0|123|s3cret", false},
		{"8080|123", true},
		{"abc|123|s", true},
		{"70000|123|s", true},
		{"80|x|s", true},
		{"80|123| ", true},
	}
	for _, tt := range tests {
		if _, err := parse(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestPathFor(t *testing.T) {
	if got := PathFor("/tmp/x.db"); got != "/tmp/x.db.writer.lock" {
		t.Errorf("PathFor(file) = %q", got)
	}
	if got := PathFor("postgresql://u@h/db"); filepath.Base(got) != "postgresql.writer.lock" {
		t.Errorf("PathFor(postgres) = %q", got)
	}
}
