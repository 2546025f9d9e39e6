package handlers

import (
	"net/http"
	"strconv"

	"github.com/gluk-w/claworc/webssh/internal/logging"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

// GetServerLogs returns the tail of the client's own log file. Session
// output never goes to this file.
func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if q := r.URL.Query().Get("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = min(n, maxLogLines)
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read log file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": lines, "logs": content})
}

func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear log file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
