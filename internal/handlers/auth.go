package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/omega-realm/presence/internal/auth"
	"github.com/omega-realm/presence/internal/logging"
)

type AuthHandler struct {
	tokens *auth.TokenManager
	log    logging.Logger
}

func NewAuthHandler(tokens *auth.TokenManager, log logging.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, log: log.With("component", "auth_handler")}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshTokenRequest represents the refresh token request body
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
}

// Login exchanges operator credentials for a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if err := h.tokens.CheckCredentials(req.Username, req.Password); err != nil {
		h.log.Warn(r.Context(), "operator login rejected", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	h.issue(w, r, req.Username)
}

// RefreshToken rotates the token pair using a valid refresh token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claims, err := h.tokens.ValidateRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	h.issue(w, r, claims.Username)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, username string) {
	access, refresh, err := h.tokens.IssuePair(username)
	if err != nil {
		h.log.Error(r.Context(), "failed to issue tokens", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Username:     username,
	})
	h.log.Info(r.Context(), "operator tokens issued", "username", username)
}
