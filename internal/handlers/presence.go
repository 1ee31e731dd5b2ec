package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/models"
	"github.com/omega-realm/presence/internal/recovery"
)

// PresenceFeed is the live presence view the gateway keeps current.
type PresenceFeed interface {
	Apply(u models.VoiceStateUpdate)
	ReplaceGuild(guildID string, rooms []models.Room)
}

// PresenceEngine runs the session policy on gateway input.
type PresenceEngine interface {
	HandleVoiceStateUpdate(ctx context.Context, u models.VoiceStateUpdate) error
	RearmRecovery(guildID string)
	RecoverActiveSessions(ctx context.Context) (recovery.Result, error)
}

type PresenceHandler struct {
	feed   PresenceFeed
	engine PresenceEngine
	log    logging.Logger
}

func NewPresenceHandler(feed PresenceFeed, engine PresenceEngine, log logging.Logger) *PresenceHandler {
	return &PresenceHandler{feed: feed, engine: engine, log: log.With("component", "presence_handler")}
}

// SnapshotRequest is a full view of one guild's voice rooms.
type SnapshotRequest struct {
	GuildID string        `json:"guild_id"`
	Rooms   []models.Room `json:"rooms"`
}

// SnapshotResponse reports what the recovery pass did with the snapshot.
type SnapshotResponse struct {
	GuildID  string          `json:"guild_id"`
	Rooms    int             `json:"rooms"`
	Recovery recovery.Result `json:"recovery"`
}

// Event ingests one voice state update.
func (h *PresenceHandler) Event(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var u models.VoiceStateUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if u.GuildID == "" || u.UserID == "" {
		writeError(w, http.StatusBadRequest, "guild_id and user_id are required")
		return
	}

	h.feed.Apply(u)
	if err := h.engine.HandleVoiceStateUpdate(r.Context(), u); err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error(r.Context(), "voice state update failed", "guild_id", u.GuildID, "user_id", u.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Snapshot replaces a guild's presence view and recovers its sessions.
func (h *PresenceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}

	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.GuildID == "" {
		writeError(w, http.StatusBadRequest, "guild_id is required")
		return
	}
	for i := range req.Rooms {
		req.Rooms[i].GuildID = req.GuildID
	}

	h.feed.ReplaceGuild(req.GuildID, req.Rooms)
	h.engine.RearmRecovery(req.GuildID)

	res, err := h.engine.RecoverActiveSessions(r.Context())
	if err != nil && !errors.Is(err, common.ErrAlreadyRunning) {
		h.log.Error(r.Context(), "recovery after snapshot failed", "guild_id", req.GuildID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{GuildID: req.GuildID, Rooms: len(req.Rooms), Recovery: res})
}
