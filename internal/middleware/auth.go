package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/omega-realm/presence/internal/auth"
)

type contextKey string

// OperatorContextKey holds the validated operator claims.
const OperatorContextKey contextKey = "operator"

type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenValidator checks bearer access tokens.
type TokenValidator interface {
	ValidateAccess(tokenString string) (*auth.OperatorClaims, error)
}

// RequireAuth rejects requests without a valid "Bearer <token>" header.
func RequireAuth(tokens TokenValidator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "Invalid authorization header format. Use: Bearer <token>")
			return
		}

		claims, err := tokens.ValidateAccess(parts[1])
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), OperatorContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OperatorClaims extracts the claims stored by RequireAuth.
func OperatorClaims(r *http.Request) (*auth.OperatorClaims, bool) {
	claims, ok := r.Context().Value(OperatorContextKey).(*auth.OperatorClaims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
