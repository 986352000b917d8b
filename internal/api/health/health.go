// Package health provides health check functionality for API components.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is an interface for components that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type check struct {
	pinger Pinger
	// critical checks make the service unhealthy; others only degrade it.
	critical bool
}

// Checker performs health checks for the service's dependencies.
type Checker struct {
	checks    map[string]check
	startTime time.Time
	version   string
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewChecker creates a health checker whose "database" component pings db.
func NewChecker(db Pinger, version string) *Checker {
	c := &Checker{
		checks:    make(map[string]check),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
	c.checks["database"] = check{pinger: db, critical: true}
	return c
}

// AddOptional registers a non-critical component. A failing optional component
// degrades the service but keeps it serving.
func (c *Checker) AddOptional(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{pinger: p}
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check performs all health checks and returns the aggregated response.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	names := make([]string, 0, len(c.checks))
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		names = append(names, name)
		checks[name] = ch
	}
	c.mu.RUnlock()
	sort.Strings(names)

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := make(map[string]ComponentStatus, len(names))
	overallStatus := StatusHealthy
	for _, name := range names {
		ch := checks[name]
		st := ping(checkCtx, name, ch.pinger)
		if st.Status == StatusUnhealthy && !ch.critical {
			st.Status = StatusDegraded
		}
		components[name] = st

		switch {
		case st.Status == StatusUnhealthy:
			overallStatus = StatusUnhealthy
		case st.Status == StatusDegraded && overallStatus == StatusHealthy:
			overallStatus = StatusDegraded
		}
	}

	return &Response{
		Status:     overallStatus,
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

// Serving reports whether the service should accept traffic.
func (c *Checker) Serving(ctx context.Context) bool {
	return c.Check(ctx).Status != StatusUnhealthy
}

func ping(ctx context.Context, name string, p Pinger) ComponentStatus {
	if p == nil {
		return ComponentStatus{
			Status:  StatusUnhealthy,
			Message: name + " not configured",
		}
	}

	if err := p.Ping(ctx); err != nil {
		return ComponentStatus{
			Status:  StatusUnhealthy,
			Message: name + " ping failed: " + err.Error(),
		}
	}

	return ComponentStatus{
		Status:  StatusHealthy,
		Message: "connected",
	}
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		if response.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(response)
	}
}
