// Package handlers serves the local control API: read-only views of the
// connection and prompt state plus the operations a user can trigger.
package handlers

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/claworc/webssh/internal/connection"
	"github.com/gluk-w/claworc/webssh/internal/prompt"
	"github.com/gluk-w/claworc/webssh/internal/settings"
	"github.com/gluk-w/claworc/webssh/internal/terminal"
)

// Set from main before the router serves requests.
var (
	Machine     *connection.Machine
	Prompts     *prompt.Engine
	Preferences *settings.Manager
	SessionLog  *terminal.SessionLog
)

// NewRouter returns the control API router.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(LoopbackOnly)

	r.Get("/health", HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", GetStatus)
		r.Get("/transitions", GetTransitions)
		r.Get("/events", GetEvents)
		r.Post("/reconnect", Reconnect)
		r.Post("/reauth", Reauth)
		r.Post("/replay-credentials", ReplayCredentials)

		r.Get("/prompts", GetPrompts)
		r.Get("/prompts/view", GetPromptsView)
		r.Post("/prompts/dismiss-all", DismissAllPrompts)
		r.Post("/prompts/force-close", ForceClosePrompt)
		r.Post("/prompts/{id}/respond", RespondPrompt)
		r.Delete("/prompts/toasts/{id}", DismissToast)

		r.Get("/preferences", GetPreferences)
		r.Put("/preferences", UpdatePreferences)

		r.Get("/session-log", DownloadSessionLog)
		r.Delete("/session-log", ClearSessionLog)

		r.Get("/logs", GetServerLogs)
		r.Delete("/logs", ClearServerLogs)
	})
	return r
}

// LoopbackOnly rejects requests that do not come from the local host.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			writeError(w, http.StatusForbidden, "Control API is only reachable from localhost")
			return
		}
		next.ServeHTTP(w, r)
	})
}
