package handlers

import (
	"context"
	"net/http"
	"time"
)

// SessionReader answers live questions about open sessions.
type SessionReader interface {
	GetCurrentSessionDuration(ctx context.Context, userID, guildID string) (time.Duration, bool)
	GetCurrentSessionCoinsSoFar(ctx context.Context, userID, guildID string) (int64, bool)
}

type SessionHandler struct {
	sessions SessionReader
}

func NewSessionHandler(sessions SessionReader) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CurrentSessionResponse describes a user's open session, if any.
type CurrentSessionResponse struct {
	GuildID    string `json:"guild_id"`
	UserID     string `json:"user_id"`
	Active     bool   `json:"active"`
	DurationMs int64  `json:"duration_ms"`
	CoinsSoFar int64  `json:"coins_so_far"`
}

// Current handles GET /api/sessions/current?guild_id=&user_id=.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	guildID := r.URL.Query().Get("guild_id")
	userID := r.URL.Query().Get("user_id")
	if guildID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "guild_id and user_id are required")
		return
	}

	resp := CurrentSessionResponse{GuildID: guildID, UserID: userID}
	if d, ok := h.sessions.GetCurrentSessionDuration(r.Context(), userID, guildID); ok {
		resp.Active = true
		resp.DurationMs = d.Milliseconds()
		resp.CoinsSoFar, _ = h.sessions.GetCurrentSessionCoinsSoFar(r.Context(), userID, guildID)
	}
	writeJSON(w, http.StatusOK, resp)
}
