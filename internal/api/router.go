// Package api exposes the dispatcher over plain HTTP+JSON.
package api

import (
	"net/http"

	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/dispatch"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Dispatcher *dispatch.Dispatcher
	Auth       auth.Authenticator
	Logger     *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Operations (auth required via Bearer sgk_ token)
	mux.HandleFunc("GET /v1/operations", deps.authMiddleware(deps.handleListOperations))
	mux.HandleFunc("POST /v1/operations/{name}", deps.authMiddleware(deps.handleCallOperation))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
