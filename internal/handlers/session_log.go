package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gluk-w/claworc/webssh/internal/terminal"
)

// DownloadSessionLog returns the session log as plain text and then
// discards it.
func DownloadSessionLog(w http.ResponseWriter, r *http.Request) {
	if SessionLog == nil {
		writeError(w, http.StatusServiceUnavailable, "Session log not available")
		return
	}
	var buf bytes.Buffer
	s, err := SessionLog.Download(&buf)
	if err != nil {
		if errors.Is(err, terminal.ErrNoSessionLog) {
			writeError(w, http.StatusNotFound, "No session log")
			return
		}
		if s == nil {
			writeError(w, http.StatusInternalServerError, "Failed to read session log")
			return
		}
	}
	name := fmt.Sprintf("webssh-%s.log", s.StartedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func ClearSessionLog(w http.ResponseWriter, r *http.Request) {
	if SessionLog == nil {
		writeError(w, http.StatusServiceUnavailable, "Session log not available")
		return
	}
	if err := SessionLog.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear session log")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
