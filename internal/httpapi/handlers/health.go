package handlers

import (
	"context"
	"net/http"
	"time"

	"framecast/internal/httpkit"
)

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "framecast-api",
		"version": h.version,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, 200, health)
}

// deepHealthCheck runs every registered check plus the storage report.
func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any, len(h.checks)+1)
	for name, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		checks[name] = check(checkCtx)
		cancel()
	}
	checks["storage"] = h.checkStorage(ctx)
	return checks
}

// PingCheck adapts a ping function into a Check reporting latency.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) map[string]any {
		start := time.Now()
		result := map[string]any{"status": "ok"}
		if err := ping(ctx); err != nil {
			result["status"] = "error"
			result["error"] = err.Error()
		}
		result["latency_ms"] = time.Since(start).Milliseconds()
		return result
	}
}

func (h *Handler) checkStorage(_ context.Context) map[string]any {
	if h.sp == nil {
		return map[string]any{"status": "error", "error": "no storage provider"}
	}
	return map[string]any{
		"status":   "ok",
		"provider": h.sp.Provider(),
	}
}
