package handlers

import (
	"io"
	"net/http"

	"github.com/gluk-w/claworc/webssh/internal/settings"
)

func GetPreferences(w http.ResponseWriter, r *http.Request) {
	if Preferences == nil {
		writeJSON(w, http.StatusOK, settings.Defaults())
		return
	}
	writeJSON(w, http.StatusOK, Preferences.Get())
}

// UpdatePreferences merges the body into the stored preferences. Fields not
// in the body keep their value.
func UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	if Preferences == nil {
		writeError(w, http.StatusServiceUnavailable, "Preferences not available")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := settings.Decode(Preferences.Stored(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := Preferences.Update(p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, Preferences.Get())
}
