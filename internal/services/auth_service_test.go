package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certichain/internal/middleware"
	"certichain/internal/models"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	svc := NewAuthService(time.Hour, time.Minute)

	hash, err := svc.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, svc.CheckPassword(hash, "correct horse battery staple"))
	assert.Error(t, svc.CheckPassword(hash, "wrong"))
	assert.Error(t, svc.CheckPassword("", "anything"))
}

func TestIssueSessionToken(t *testing.T) {
	middleware.SetSigningKey([]byte("test-secret"))
	svc := NewAuthService(time.Hour, time.Minute)
	account := &models.Account{ID: "acc-1", Email: "a@x.com", Role: "student"}

	raw, err := svc.IssueSessionToken(account)
	require.NoError(t, err)

	claims, err := middleware.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "student", claims.Role)
	assert.False(t, claims.TwoFactorPending)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestIssueTempTokenCarriesPendingMarker(t *testing.T) {
	middleware.SetSigningKey([]byte("test-secret"))
	svc := NewAuthService(time.Hour, 5*time.Minute)
	account := &models.Account{ID: "acc-1", Email: "a@x.com", Role: "student"}

	raw, err := svc.IssueTempToken(account)
	require.NoError(t, err)

	claims, err := middleware.ParseToken(raw)
	require.NoError(t, err)
	assert.True(t, claims.TwoFactorPending)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, time.Minute)
}
