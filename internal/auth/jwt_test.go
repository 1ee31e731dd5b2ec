package auth

import (
	"testing"
	"time"

	"github.com/omega-realm/presence/internal/common"
	"github.com/omega-realm/presence/internal/config"
	"github.com/omega-realm/presence/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newManager(t *testing.T, clock *testfixtures.Clock) *TokenManager {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewTokenManager(config.Auth{
		JWTSecret:            "test-secret",
		AccessTokenDuration:  time.Hour,
		RefreshTokenDuration: 24 * time.Hour,
		OpsUsername:          "ops",
		OpsPasswordHash:      string(hash),
	}, clock.Now)
}

func TestCheckCredentials(t *testing.T) {
	m := newManager(t, testfixtures.NewClock(time.Time{}))

	assert.NoError(t, m.CheckCredentials("ops", "hunter22"))
	assert.ErrorIs(t, m.CheckCredentials("ops", "wrong"), common.ErrUnauthorized)
	assert.ErrorIs(t, m.CheckCredentials("root", "hunter22"), common.ErrUnauthorized)

	unset := NewTokenManager(config.Auth{JWTSecret: "s", OpsUsername: "ops"}, nil)
	assert.ErrorIs(t, unset.CheckCredentials("ops", ""), common.ErrUnauthorized)
}

func TestIssueAndValidate(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	m := newManager(t, clock)

	access, refresh, err := m.IssuePair("ops")
	require.NoError(t, err)

	claims, err := m.ValidateAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, issuer, claims.Issuer)

	_, err = m.ValidateAccess(refresh)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "refresh token used as access")

	claims, err = m.ValidateRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	_, err = m.ValidateRefresh(access)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_ExpiredAndForeign(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	m := newManager(t, clock)

	access, _, err := m.IssuePair("ops")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = m.ValidateAccess(access)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	other := NewTokenManager(config.Auth{JWTSecret: "other", AccessTokenDuration: time.Hour}, clock.Now)
	foreign, _, err := other.IssuePair("ops")
	require.NoError(t, err)
	_, err = m.ValidateAccess(foreign)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = m.ValidateAccess("not-a-token")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
