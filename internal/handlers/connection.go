package handlers

import (
	"errors"
	"net/http"

	"github.com/gluk-w/claworc/webssh/internal/connection"
	"github.com/gluk-w/claworc/webssh/internal/session"
)

type statusResponse struct {
	Status          session.Status      `json:"status"`
	Permissions     session.Permissions `json:"permissions"`
	ReauthRequired  bool                `json:"reauthRequired"`
	Authenticated   bool                `json:"authenticated"`
	LastError       *session.ErrorView  `json:"lastError"`
	ConnectAttempts int                 `json:"connectAttempts"`
	Logging         bool                `json:"logging"`
	PromptBlocked   bool                `json:"promptBlocked"`
}

func requireMachine(w http.ResponseWriter) bool {
	if Machine == nil {
		writeError(w, http.StatusServiceUnavailable, "No connection")
		return false
	}
	return true
}

// GetStatus returns the connection status and server-granted permissions.
func GetStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMachine(w) {
		return
	}
	st := Machine.State()
	resp := statusResponse{
		Status:          st.Status.Get(),
		Permissions:     st.Permissions.Get(),
		ReauthRequired:  st.ReauthRequired.Get(),
		Authenticated:   st.Authenticated.Get(),
		LastError:       st.LastError.Get(),
		ConnectAttempts: Machine.ConnectAttempts(),
		Logging:         Machine.Logging(),
	}
	if Prompts != nil {
		resp.PromptBlocked = Prompts.Blocked()
	}
	writeJSON(w, http.StatusOK, resp)
}

func GetTransitions(w http.ResponseWriter, r *http.Request) {
	if !requireMachine(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transitions": Machine.Transitions()})
}

func GetEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMachine(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": Machine.Events()})
}

// Reconnect discards the current transport and connects again.
func Reconnect(w http.ResponseWriter, r *http.Request) {
	if !requireMachine(w) {
		return
	}
	Machine.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(Machine.Status())})
}

func Reauth(w http.ResponseWriter, r *http.Request) {
	if !requireMachine(w) {
		return
	}
	writeControlResult(w, Machine.Reauth())
}

func ReplayCredentials(w http.ResponseWriter, r *http.Request) {
	if !requireMachine(w) {
		return
	}
	writeControlResult(w, Machine.ReplayCredentials())
}

func writeControlResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, connection.ErrNotPermitted):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, connection.ErrNotConnected):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
