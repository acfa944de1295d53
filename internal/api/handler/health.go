package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/checkpoint-recovery/internal/api/response"
)

// Pinger is a dependency whose connectivity gates readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including storage connectivity
func ReadyCheck(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(deps))
		ready := true

		for name, dep := range deps {
			if err := dep.Ping(r.Context()); err != nil {
				status[name] = "unavailable"
				ready = false
				continue
			}
			status[name] = "ok"
		}

		if !ready {
			response.ServiceUnavailable(w, status)
			return
		}

		status["status"] = "ready"
		response.OK(w, status)
	}
}
