package handler

import (
	"net/http"

	"github.com/lvalente/filmtrack-go/internal/state"

	"go.uber.org/zap"
)

// RequireSession rejects requests while no session is held. Record reads
// stay open (the anon key covers them); mutations do not.
func RequireSession(sessions *state.SessionManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.IsAuthenticated() {
				logger.Warn("auth: no active session",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "sign in required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
