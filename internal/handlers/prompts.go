package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/webssh/internal/prompt"
)

type respondRequest struct {
	Action string            `json:"action"`
	Inputs map[string]string `json:"inputs"`
}

func requirePrompts(w http.ResponseWriter) bool {
	if Prompts == nil {
		writeError(w, http.StatusServiceUnavailable, "Prompts not available")
		return false
	}
	return true
}

// GetPrompts returns the escaped view of the active prompt, the queue and
// the toasts.
func GetPrompts(w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(w) {
		return
	}
	s := Prompts.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"view":  s.View(),
		"stats": s.Stats,
	})
}

// GetPromptsView renders the prompts as an HTML fragment.
func GetPromptsView(w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(w) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
	if err := prompt.RenderHTML(w, Prompts.Snapshot()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render prompts")
	}
}

func RespondPrompt(w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(w) {
		return
	}
	var body respondRequest
	if !readJSON(w, r, &body) {
		return
	}
	if body.Action == "" {
		body.Action = prompt.ActionOK
	}
	id := chi.URLParam(r, "id")
	if err := Prompts.Respond(id, body.Action, body.Inputs); err != nil {
		if errors.Is(err, prompt.ErrUnknownPrompt) {
			writeError(w, http.StatusNotFound, "Prompt is not active")
			return
		}
		if errors.Is(err, prompt.ErrNotDelivered) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prompt.Response{ID: id, Action: body.Action})
}

func DismissAllPrompts(w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(w) {
		return
	}
	rs := Prompts.DismissAll()
	if rs == nil {
		rs = []prompt.Response{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dismissed": rs})
}

func ForceClosePrompt(w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(w) {
		return
	}
	resp, err := Prompts.ForceClose()
	switch {
	case errors.Is(err, prompt.ErrUnknownPrompt):
		writeError(w, http.StatusNotFound, "No active prompt")
	case errors.Is(err, prompt.ErrForceCloseNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func DismissToast(w http.ResponseWriter, r *http.Request) {
	if !requirePrompts(w) {
		return
	}
	if err := Prompts.DismissToast(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "Toast not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
