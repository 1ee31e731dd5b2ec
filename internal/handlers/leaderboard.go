package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/omega-realm/presence/internal/logging"
	presenceredis "github.com/omega-realm/presence/internal/redis"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GroupRanking reads the per-guild group presence board.
type GroupRanking interface {
	TopGroups(ctx context.Context, guildID string, limit int64) ([]presenceredis.GroupEntry, error)
}

type LeaderboardHandler struct {
	board GroupRanking
	log   logging.Logger
}

func NewLeaderboardHandler(board GroupRanking, log logging.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, log: log.With("component", "leaderboard_handler")}
}

// GetGroupLeaderboard handles GET /api/groups/leaderboard?guild_id=&limit=.
func (h *LeaderboardHandler) GetGroupLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	guildID := r.URL.Query().Get("guild_id")
	if guildID == "" {
		writeError(w, http.StatusBadRequest, "guild_id is required")
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := h.board.TopGroups(r.Context(), guildID, int64(limit))
	if err != nil {
		h.log.Error(r.Context(), "failed to read group leaderboard", "guild_id", guildID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if entries == nil {
		entries = []presenceredis.GroupEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id": guildID,
		"groups":   entries,
	})
}
