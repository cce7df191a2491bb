package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

const dependencyTimeout = time.Second

// dependency is one backing store probed by the readiness check. A failing
// critical dependency makes the service unready; any other one only marks
// it degraded.
type dependency struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	deps    []dependency
	env     string
	version string
}

// NewHealthHandler probes Postgres as critical. Redis is optional because
// the slot unique index still rejects double bookings without the lock.
func NewHealthHandler(postgres Pinger, rdb RedisPinger, env, version string) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "postgres", critical: true, ping: postgres.Ping},
			{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok", Version: h.version, Env: h.env})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.deps))

	var wg sync.WaitGroup
	for i, d := range h.deps {
		wg.Add(1)
		go func(i int, d dependency) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout)
			defer cancel()
			errs[i] = d.ping(ctx)
		}(i, d)
	}
	wg.Wait()

	resp := ReadinessResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.deps)),
	}
	for i, d := range h.deps {
		if errs[i] == nil {
			resp.Dependencies[d.name] = "ok"
			continue
		}
		resp.Dependencies[d.name] = "down"
		switch {
		case d.critical:
			resp.Status = "error"
		case resp.Status == "ok":
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if resp.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
