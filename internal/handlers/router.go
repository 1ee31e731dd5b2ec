package handlers

import (
	"net/http"
	"time"

	"github.com/omega-realm/presence/internal/middleware"
)

// Router collects the handlers behind the HTTP API.
type Router struct {
	Auth        *AuthHandler
	Presence    *PresenceHandler
	Sessions    *SessionHandler
	Leaderboard *LeaderboardHandler
	Ops         *OpsHandler
	Tokens      middleware.TokenValidator
	Now         func() time.Time
}

// Mux registers every route. Operator routes require a bearer access token.
func (rt Router) Mux() *http.ServeMux {
	now := rt.Now
	if now == nil {
		now = time.Now
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/api/auth/login", rt.Auth.Login)
	mux.HandleFunc("/api/auth/refresh", rt.Auth.RefreshToken)

	mux.HandleFunc("/api/presence/events", rt.Presence.Event)
	mux.HandleFunc("/api/presence/snapshot", rt.Presence.Snapshot)
	mux.HandleFunc("/api/sessions/current", rt.Sessions.Current)
	mux.HandleFunc("/api/groups/leaderboard", rt.Leaderboard.GetGroupLeaderboard)

	mux.HandleFunc("/api/ops/reconcile", middleware.RequireAuth(rt.Tokens, rt.Ops.Reconcile))
	mux.HandleFunc("/api/ops/recover", middleware.RequireAuth(rt.Tokens, rt.Ops.Recover))
	mux.HandleFunc("/api/ops/integrity", middleware.RequireAuth(rt.Tokens, rt.Ops.Integrity))
	mux.HandleFunc("/api/ops/reset", middleware.RequireAuth(rt.Tokens, rt.Ops.Reset))

	return mux
}
