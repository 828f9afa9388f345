package utils

import (
	"context"
	"sync"
	"time"
)

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

// HealthStatus represents current status of external services.
type HealthStatus struct {
	Backends  map[string]string `json:"backends"`
	Checks    map[string]bool   `json:"checks"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// Healthy is true when every probe passed on the last run.
func (h HealthStatus) Healthy() bool {
	for _, ok := range h.Checks {
		if !ok {
			return false
		}
	}
	return true
}

var (
	currentHealth = HealthStatus{Backends: map[string]string{}, Checks: map[string]bool{}}
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// SetBackends records which implementation serves each concern.
func SetBackends(backends map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	currentHealth.Backends = backends
}

// RunHealthChecks probes every dependency once and stores the result.
func RunHealthChecks(ctx context.Context, probes map[string]Probe) HealthStatus {
	checks := make(map[string]bool, len(probes))
	for name, probe := range probes {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		checks[name] = probe(pctx) == nil
		cancel()
	}

	mu.Lock()
	defer mu.Unlock()
	currentHealth.Checks = checks
	currentHealth.CheckedAt = time.Now()
	return currentHealth
}

// StartHealthMonitor performs periodic health checks until ctx ends.
func StartHealthMonitor(ctx context.Context, probes map[string]Probe, interval time.Duration) {
	RunHealthChecks(ctx, probes)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				RunHealthChecks(ctx, probes)
			}
		}
	}()
}
