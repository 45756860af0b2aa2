package metrics

import (
	"encoding/json"
	"net/http"
	"time"
)

var startTime = time.Now()

// LivenessHandler reports process uptime at /healthz on the
// --metrics-addr server, alongside the /metrics endpoint. kannich has
// no cluster components to aggregate health from, so this is the full
// health surface — unlike a long-running service it either completes
// the run or the process exits.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(startTime).String(),
		})
	}
}
