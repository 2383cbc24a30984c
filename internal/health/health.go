// Package health tracks process liveness: an advisory single-instance file
// lock (flock.go) plus the status snapshot served at GET /healthz.
package health

import (
	"context"
	"time"

	"github.com/antigravity-dev/prospector/internal/corestore"
)

// Status is the JSON shape served at GET /healthz, grounded on the
// teacher's internal/api.Server wiring style for how a status struct is
// marshaled straight to the response body.
type Status struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	DBReachable   bool    `json:"db_reachable"`
	WorkerCount   int     `json:"worker_count"`
}

// Monitor computes the current Status on demand; it holds no background
// goroutine of its own; the process-wide cadence (config.Health.CheckInterval)
// belongs to whatever caller polls Check on a ticker.
type Monitor struct {
	store       *corestore.Store
	startedAt   time.Time
	workerCount int
}

// NewMonitor builds a health monitor bound to a store and a fixed
// worker-pool size (the pool doesn't resize at runtime, so this is read
// once at startup rather than tracked live).
func NewMonitor(store *corestore.Store, workerCount int) *Monitor {
	return &Monitor{store: store, startedAt: time.Now(), workerCount: workerCount}
}

// Check reports the current process health snapshot. Never returns an
// error: an unreachable database is reported as DBReachable=false rather
// than propagated, since a health check's job is to describe a failure,
// not fail itself.
func (m *Monitor) Check(ctx context.Context) Status {
	status := Status{
		UptimeSeconds: time.Since(m.startedAt).Seconds(),
		WorkerCount:   m.workerCount,
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status.DBReachable = m.store.DB().PingContext(pingCtx) == nil
	return status
}
