package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if len(a.Checks) == 0 {
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(a.Checks))
	for _, c := range a.Checks {
		if err := c.Check(ctx); err != nil {
			a.logger(r).Warn().Err(err).Str("check", c.Name).Msg("health check failed")
			checks[c.Name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "up"
	}
	a.json(w, code, map[string]any{"status": status, "checks": checks})
}
