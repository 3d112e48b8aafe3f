package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquirePIDFileWritesCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustd.pid")

	if err := AcquirePIDFile(path); err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(raw), strconv.Itoa(os.Getpid()); got != want {
		t.Fatalf("pid file contains %q, expected %q", got, want)
	}
}

func TestAcquirePIDFileRejectsLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustd.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("seed pid file: %v", err)
	}

	err := AcquirePIDFile(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("AcquirePIDFile=%v, expected ErrAlreadyRunning", err)
	}
}

func TestAcquirePIDFileReclaimsStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustd.pid")
	// PID 999999 is not a live process on any reasonable system.
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatalf("seed pid file: %v", err)
	}

	if err := AcquirePIDFile(path); err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(raw), strconv.Itoa(os.Getpid()); got != want {
		t.Fatalf("pid file contains %q, expected %q", got, want)
	}
}

func TestReleasePIDFileRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustd.pid")
	if err := AcquirePIDFile(path); err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}

	ReleasePIDFile(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be removed, stat err=%v", err)
	}
}
