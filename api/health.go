package api

import (
	"net/http"

	"gridServer/db"
)

/* =========================
   HEALTH CHECK ENDPOINT
========================= */

// HandleHealthCheck handles health check requests
// GET /api/health
func (s *Server) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	redisHealth := "ok"
	if err := db.HealthCheck(ctx); err != nil {
		redisHealth = "error: " + err.Error()
	}

	postgresHealth := "ok"
	if err := db.HealthCheckPostgres(ctx); err != nil {
		postgresHealth = "error: " + err.Error()
	}

	oracleHealth := "waiting"
	if tick := s.hub.LatestPrice(); tick != nil {
		oracleHealth = "ok"
	}

	chainHealth := "disabled"
	if s.verifier != nil {
		chainHealth = "ok"
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"redis":      redisHealth,
		"postgres":   postgresHealth,
		"oracle":     oracleHealth,
		"chain":      chainHealth,
		"clients":    s.hub.ClientCount(),
		"nowSeconds": s.hub.Now(),
		"message":    "Health check completed",
	})
}
