package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newManager(t *testing.T) (*Manager, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	m, err := NewManager(config.Config{Auth: config.AuthConfig{
		JWTSecret:       "test-secret",
		Issuer:          "monstro",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		ResetTokenTTL:   time.Hour,
		ServiceTokenTTL: time.Hour,
	}}, clk, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m, clk
}

func TestIssuePairAndVerify(t *testing.T) {
	m, clk := newManager(t)
	pair, err := m.IssuePair(Subject{UserID: "42", Email: "a@b.co", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(15*time.Minute), pair.ExpiresAt)

	claims, err := m.VerifyType(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "42", claims.Subject)

	_, err = m.VerifyType(pair.AccessToken, TypeRefresh)
	assert.ErrorIs(t, err, ErrWrongType)

	clk.Advance(16 * time.Minute)
	_, err = m.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.VerifyType(pair.RefreshToken, TypeRefresh)
	assert.NoError(t, err)
}

func TestServiceToken(t *testing.T) {
	m, _ := newManager(t)
	raw, _, err := m.IssueService("cron", 0)
	require.NoError(t, err)

	claims, err := m.Verify(raw)
	require.NoError(t, err)
	assert.True(t, claims.IsService())
	assert.Equal(t, "cron", claims.Subject)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	m, clk := newManager(t)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin", TokenType: TypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "monstro",
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{TokenType: TypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "monstro",
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}})
	raw, err = other.SignedString([]byte("someone-else"))
	require.NoError(t, err)
	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSecretIsFatalInProduction(t *testing.T) {
	_, err := NewManager(config.Config{Environment: "production"}, clock.SystemClock{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
