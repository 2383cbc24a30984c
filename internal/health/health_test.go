package health

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/prospector/internal/corestore"
)

func TestMonitorCheckReportsReachableDB(t *testing.T) {
	store, err := corestore.Open(filepath.Join(t.TempDir(), "health.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	m := NewMonitor(store, 3)
	status := m.Check(context.Background())

	if !status.DBReachable {
		t.Fatal("expected DBReachable true for a freshly opened store")
	}
	if status.WorkerCount != 3 {
		t.Fatalf("WorkerCount = %d, want 3", status.WorkerCount)
	}
	if status.UptimeSeconds < 0 {
		t.Fatalf("UptimeSeconds = %v, want >= 0", status.UptimeSeconds)
	}
}

func TestMonitorCheckReportsUnreachableDBAfterClose(t *testing.T) {
	store, err := corestore.Open(filepath.Join(t.TempDir(), "health.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Close()

	m := NewMonitor(store, 1)
	status := m.Check(context.Background())
	if status.DBReachable {
		t.Fatal("expected DBReachable false after store is closed")
	}
}
