// Package auth issues and validates the tokens that guard operator routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/config"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "omega-realm-presence"

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// OperatorClaims identifies the operator behind a request.
type OperatorClaims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager signs HS256 access and refresh tokens and checks operator
// credentials against the configured bcrypt hash.
type TokenManager struct {
	secret       []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	username     string
	passwordHash []byte
	now          func() time.Time
}

func NewTokenManager(cfg config.Auth, now func() time.Time) *TokenManager {
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		secret:       []byte(cfg.JWTSecret),
		accessTTL:    cfg.AccessTokenDuration,
		refreshTTL:   cfg.RefreshTokenDuration,
		username:     cfg.OpsUsername,
		passwordHash: []byte(cfg.OpsPasswordHash),
		now:          now,
	}
}

// CheckCredentials reports ErrUnauthorized for an unknown user, a wrong
// password, or when no password hash is configured.
func (m *TokenManager) CheckCredentials(username, password string) error {
	if len(m.passwordHash) == 0 || username != m.username {
		return common.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)); err != nil {
		return common.ErrUnauthorized
	}
	return nil
}

// IssuePair returns a fresh access and refresh token for username.
func (m *TokenManager) IssuePair(username string) (access, refresh string, err error) {
	access, err = m.sign(username, tokenTypeAccess, m.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = m.sign(username, tokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (m *TokenManager) sign(username, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := OperatorClaims{
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateAccess parses an access token. Refresh tokens are rejected.
func (m *TokenManager) ValidateAccess(tokenString string) (*OperatorClaims, error) {
	return m.validate(tokenString, tokenTypeAccess)
}

// ValidateRefresh parses a refresh token. Access tokens are rejected.
func (m *TokenManager) ValidateRefresh(tokenString string) (*OperatorClaims, error) {
	return m.validate(tokenString, tokenTypeRefresh)
}

func (m *TokenManager) validate(tokenString, tokenType string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.TokenType != tokenType {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
