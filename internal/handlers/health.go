package handlers

import (
	"net/http"

	"github.com/gluk-w/claworc/webssh/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	conn := "none"
	if Machine != nil {
		conn = string(Machine.Status())
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     status,
		"database":   dbStatus,
		"connection": conn,
	})
}
