package api

import (
	"net/http"
	"runtime"
	"strings"
	"time"
)

// StatsProvider reports service counters keyed by name.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats: service counters plus process uptime and
// goroutine count.
type StatsHandler struct {
	statsProvider StatsProvider
	started       time.Time
}

// NewStatsHandler creates a stats handler over provider.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: provider, started: time.Now()}
}

// HandleStats writes every counter, or only those named in a comma separated
// keys query parameter. Unknown keys are omitted.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.statsProvider.GetStats()
	stats["uptimeSeconds"] = time.Since(h.started).Seconds()
	stats["goroutines"] = runtime.NumGoroutine()

	if keys := r.URL.Query().Get("keys"); keys != "" {
		picked := make(map[string]interface{})
		for _, k := range strings.Split(keys, ",") {
			if v, ok := stats[strings.TrimSpace(k)]; ok {
				picked[strings.TrimSpace(k)] = v
			}
		}
		stats = picked
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stats)
}
