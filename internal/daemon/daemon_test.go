package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWritePIDThenReadStatus(t *testing.T) {
	dir := t.TempDir()

	if err := WritePID(dir, 8787, "loopback"); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	status := ReadStatus(dir)
	if !status.Running {
		t.Fatal("expected status.Running true")
	}
	if status.PID != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), status.PID)
	}
	if status.Port != 8787 || status.BindMode != "loopback" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestWritePIDRejectsWhenAlreadyRunning(t *testing.T) {
	dir := t.TempDir()

	if err := WritePID(dir, 8787, "loopback"); err != nil {
		t.Fatalf("first WritePID: %v", err)
	}
	if err := WritePID(dir, 8788, "loopback"); err == nil {
		t.Fatal("expected second WritePID to fail while the first pid is alive")
	}
}

func TestReadStatusCleansUpStalePID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, pidFileName)
	stale := `{"pid": 999999999, "started_at": "2020-01-01T00:00:00Z", "port": 8787, "bind_mode": "loopback"}`
	if err := os.WriteFile(path, []byte(stale), 0o600); err != nil {
		t.Fatalf("write stale pid file: %v", err)
	}

	status := ReadStatus(dir)
	if status.Running {
		t.Fatal("expected stale pid to report not running")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected stale pid file to be removed")
	}
}

func TestRemovePIDIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := RemovePID(dir); err != nil {
		t.Fatalf("RemovePID on missing file should not error: %v", err)
	}
	if err := WritePID(dir, 1, "loopback"); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if err := RemovePID(dir); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if err := RemovePID(dir); err != nil {
		t.Fatalf("second RemovePID should not error: %v", err)
	}
}

func TestBindAddr(t *testing.T) {
	if got := BindAddr("loopback", 8787); got != "127.0.0.1:8787" {
		t.Errorf("unexpected loopback addr: %s", got)
	}
	if got := BindAddr("lan", 8787); got != "0.0.0.0:8787" {
		t.Errorf("unexpected lan addr: %s", got)
	}
}

func TestStopFailsWhenNotRunning(t *testing.T) {
	dir := t.TempDir()
	err := Stop(dir, time.Second)
	if err == nil {
		t.Fatal("expected Stop to fail when no daemon is running")
	}
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
