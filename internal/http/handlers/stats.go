package handlers

import (
	"net/http"
	"time"

	"imageprompt/internal/i18n"
)

// Stats24h reports submission totals for the last 24 hours from the audit table.
func (a *App) Stats24h(w http.ResponseWriter, r *http.Request) {
	if a.Stats == nil {
		a.error(w, r, http.StatusNotFound, "stats unavailable", nil, i18n.MsgRequestFailed)
		return
	}
	since := a.Now().Add(-24 * time.Hour)
	stats, err := a.Stats.StatsSince(r.Context(), since)
	if err != nil {
		a.logger(r).Error().Err(err).Msg("failed to load submission stats")
		a.error(w, r, http.StatusInternalServerError, "failed to load stats", nil, i18n.MsgRequestFailed)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"since":           since.UTC().Format(time.RFC3339),
		"total":           stats.Total,
		"succeeded":       stats.Succeeded,
		"failed":          stats.Total - stats.Succeeded,
		"avg_duration_ms": stats.AvgDurationMS,
	})
}
