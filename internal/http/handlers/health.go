package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type probe struct {
	check    Check
	critical bool
}

// HealthHandler serves liveness and readiness for the settlement server.
type HealthHandler struct {
	mu        sync.RWMutex
	probes    map[string]probe
	startTime time.Time
	version   string
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		probes:    map[string]probe{},
		startTime: time.Now(),
		version:   version,
	}
}

// Register adds a dependency probe. A failing critical probe also fails /health;
// the rest only show up in /readyz.
func (h *HealthHandler) Register(name string, critical bool, check Check) *HealthHandler {
	h.mu.Lock()
	h.probes[name] = probe{check: check, critical: critical}
	h.mu.Unlock()
	return h
}

// CheckResult is one probe's outcome.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Critical  bool   `json:"critical,omitempty"`
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version,omitempty"`
	Uptime        string                 `json:"uptime,omitempty"`
	Timestamp     string                 `json:"timestamp"`
	MemoryAllocMB float64                `json:"memory_alloc_mb"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// run executes the selected probes in parallel.
func (h *HealthHandler) run(ctx context.Context, onlyCritical bool) map[string]CheckResult {
	h.mu.RLock()
	names := make([]string, 0, len(h.probes))
	for name, p := range h.probes {
		if onlyCritical && !p.critical {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	probes := make([]probe, len(names))
	for i, name := range names {
		probes[i] = h.probes[name]
	}
	h.mu.RUnlock()

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i := range probes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			err := probes[i].check(ctx)
			res := CheckResult{
				Status:    "healthy",
				LatencyMS: time.Since(start).Milliseconds(),
				Critical:  probes[i].critical,
			}
			if err != nil {
				res.Status = "unhealthy"
				res.Error = err.Error()
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	out := make(map[string]CheckResult, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

func allHealthy(results map[string]CheckResult) bool {
	for _, r := range results {
		if r.Error != "" {
			return false
		}
	}
	return true
}

// Liveness never touches dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness runs every probe.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := h.run(ctx, false)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		MemoryAllocMB: float64(m.Alloc/1024) / 1024,
		Checks:        checks,
	}
	code := http.StatusOK
	if !allHealthy(checks) {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Health runs only the critical probes, for load balancers.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := h.run(ctx, true)
	if !allHealthy(checks) {
		failed := make([]string, 0, len(checks))
		for name, r := range checks {
			if r.Error != "" {
				failed = append(failed, name)
			}
		}
		sort.Strings(failed)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}
