package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret"})

	token, err := svc.IssueToken(TokenTypeStudent, 42, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "42", claims.Subject)
}

func TestAuthServiceRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret"})
	other := NewAuthService(&config.Config{JWTSecret: "someone-else"})

	foreign, err := other.IssueToken(TokenTypeAdmin, 1, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	expired, err := svc.IssueToken(TokenTypeStudent, 1, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestAuthServiceLeewayAndTokenType(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret"})

	// Ten seconds past expiry is within the drift allowance.
	drifted, err := svc.IssueToken(TokenTypeStudent, 7, -10*time.Second)
	require.NoError(t, err)
	_, err = svc.ValidateToken(drifted)
	assert.NoError(t, err)

	guest, err := svc.IssueToken(TokenType("guest"), 7, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(guest)
	assert.ErrorContains(t, err, "unknown token type")
}
