package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omega-realm/presence/internal/accrual"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/omega-realm/presence/internal/middleware"
	"github.com/omega-realm/presence/internal/reconciler"
	"github.com/omega-realm/presence/internal/recovery"
)

// Operations are the maintenance entry points exposed to operators.
type Operations interface {
	RunReconciliationNow(ctx context.Context) (reconciler.Result, error)
	RearmRecovery(guildID string)
	RecoverActiveSessions(ctx context.Context) (recovery.Result, error)
	VerifySessionIntegrity(ctx context.Context) recovery.IntegrityResult
	CheckAndResetUser(ctx context.Context, userID, guildID string) (accrual.Boundaries, error)
}

type OpsHandler struct {
	ops Operations
	log logging.Logger
}

func NewOpsHandler(ops Operations, log logging.Logger) *OpsHandler {
	return &OpsHandler{ops: ops, log: log.With("component", "ops_handler")}
}

// ResetRequest names the user whose period counters should be checked.
type ResetRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

// ResetResponse lists the boundaries that fired.
type ResetResponse struct {
	Daily   bool `json:"daily"`
	Weekly  bool `json:"weekly"`
	Monthly bool `json:"monthly"`
}

func (h *OpsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h.audit(r, "reconcile")

	res, err := h.ops.RunReconciliationNow(r.Context())
	if errors.Is(err, common.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "Reconciliation already running")
		return
	}
	if err != nil {
		h.log.Error(r.Context(), "manual reconciliation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Recover re-arms every guild and runs a recovery pass.
func (h *OpsHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h.audit(r, "recover")

	h.ops.RearmRecovery("")
	res, err := h.ops.RecoverActiveSessions(r.Context())
	if errors.Is(err, common.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "Recovery already running")
		return
	}
	if err != nil {
		h.log.Error(r.Context(), "manual recovery failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OpsHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	h.audit(r, "integrity")
	writeJSON(w, http.StatusOK, h.ops.VerifySessionIntegrity(r.Context()))
}

func (h *OpsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.audit(r, "reset", "guild_id", req.GuildID, "user_id", req.UserID)

	b, err := h.ops.CheckAndResetUser(r.Context(), req.UserID, req.GuildID)
	if errors.Is(err, common.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "guild_id and user_id are required")
		return
	}
	if err != nil {
		h.log.Error(r.Context(), "manual reset failed", "guild_id", req.GuildID, "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{Daily: b.Daily, Weekly: b.Weekly, Monthly: b.Monthly})
}

func (h *OpsHandler) audit(r *http.Request, action string, kv ...any) {
	operator := ""
	if claims, ok := middleware.OperatorClaims(r); ok {
		operator = claims.Username
	}
	h.log.Info(r.Context(), "operator action", append([]any{"action", action, "operator", operator}, kv...)...)
}
