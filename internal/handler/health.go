package handler

import "net/http"

// Health reports liveness.
// GET / and GET /health — no auth, no upstream checks.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "neo-backend",
			"version": version,
		})
	}
}
