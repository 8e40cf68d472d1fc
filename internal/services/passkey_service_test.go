package services

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certichain/internal/config"
	"certichain/internal/models"
	"certichain/internal/security"
)

func newPasskeyServiceForTest(t *testing.T) (PasskeyService, *fakeAccountRepo, *fakePasskeyRepo) {
	t.Helper()
	accounts := newFakeAccountRepo()
	passkeys := newFakePasskeyRepo()
	challenges := security.NewChallengeStore(security.DefaultChallengeTTL)
	svc, err := NewPasskeyService(config.WebAuthnConfig{
		RPID:          "localhost",
		RPDisplayName: "CertiChain",
		RPOrigins:     []string{"http://localhost:8080"},
	}, passkeys, accounts, challenges)
	require.NoError(t, err)
	return svc, accounts, passkeys
}

func activeAccount(t *testing.T, accounts *fakeAccountRepo) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:       "acc-1",
		Email:    "student@university.edu",
		FullName: "Ada Lovelace",
		Role:     "student",
		Status:   models.StatusActive,
	}
	require.NoError(t, accounts.Create(account))
	return account
}

func TestBeginRegistrationProducesChallenge(t *testing.T) {
	svc, accounts, _ := newPasskeyServiceForTest(t)
	account := activeAccount(t, accounts)

	options, err := svc.BeginRegistration(account)
	require.NoError(t, err)
	require.NotNil(t, options)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Equal(t, "localhost", options.Response.RelyingParty.ID)

	userID, ok := options.Response.User.ID.(protocol.URLEncodedBase64)
	require.True(t, ok)
	assert.Equal(t, []byte(account.ID), []byte(userID))
}

func TestFinishRegistrationWithoutPendingChallenge(t *testing.T) {
	svc, accounts, _ := newPasskeyServiceForTest(t)
	account := activeAccount(t, accounts)

	req := httptest.NewRequest("POST", "/auth/passkey/register-verify", strings.NewReader("{}"))
	_, err := svc.FinishRegistration(account, "Laptop", req)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRegistrationChallengeIsReadOnce(t *testing.T) {
	svc, accounts, _ := newPasskeyServiceForTest(t)
	account := activeAccount(t, accounts)

	_, err := svc.BeginRegistration(account)
	require.NoError(t, err)

	// First verification consumes the challenge even when the attestation
	// itself is garbage; a retry must start over.
	req := httptest.NewRequest("POST", "/auth/passkey/register-verify", strings.NewReader("{}"))
	_, err = svc.FinishRegistration(account, "Laptop", req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChallengeNotFound)

	req = httptest.NewRequest("POST", "/auth/passkey/register-verify", strings.NewReader("{}"))
	_, err = svc.FinishRegistration(account, "Laptop", req)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestBeginLoginIssuesNonce(t *testing.T) {
	svc, _, _ := newPasskeyServiceForTest(t)

	options, nonce, err := svc.BeginLogin()
	require.NoError(t, err)
	require.NotNil(t, options)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.NotEmpty(t, nonce)

	_, nonce2, err := svc.BeginLogin()
	require.NoError(t, err)
	assert.NotEqual(t, nonce, nonce2)
}

func TestFinishLoginUnknownNonce(t *testing.T) {
	svc, _, _ := newPasskeyServiceForTest(t)

	req := httptest.NewRequest("POST", "/auth/passkey/login-verify", strings.NewReader("{}"))
	_, _, err := svc.FinishLogin("no-such-nonce", req)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestAssertionWithCloneWarningIsRejected(t *testing.T) {
	svc, accounts, passkeys := newPasskeyServiceForTest(t)
	account := activeAccount(t, accounts)

	rawID := []byte("cred-raw-id")
	require.NoError(t, passkeys.Create(&models.PasskeyCredential{
		CredentialID: models.EncodeCredentialID(rawID),
		AccountID:    account.ID,
		SignCount:    10,
	}))

	// The library reports a non-incrementing counter via CloneWarning.
	cred := &webauthn.Credential{
		ID: rawID,
		Authenticator: webauthn.Authenticator{
			SignCount:    3,
			CloneWarning: true,
		},
	}
	_, err := svc.(*passkeyService).completeAssertion(account, cred)
	assert.ErrorIs(t, err, ErrCredentialCloned)

	// The stored counter never advances on a rejected assertion.
	stored, err := passkeys.GetByCredentialID(models.EncodeCredentialID(rawID))
	require.NoError(t, err)
	assert.Equal(t, uint32(10), stored.SignCount)
}

func TestAssertionPersistsAdvancedCounter(t *testing.T) {
	svc, accounts, passkeys := newPasskeyServiceForTest(t)
	account := activeAccount(t, accounts)

	rawID := []byte("cred-raw-id")
	require.NoError(t, passkeys.Create(&models.PasskeyCredential{
		CredentialID: models.EncodeCredentialID(rawID),
		AccountID:    account.ID,
		SignCount:    10,
	}))

	cred := &webauthn.Credential{
		ID:            rawID,
		Authenticator: webauthn.Authenticator{SignCount: 11},
	}
	stored, err := svc.(*passkeyService).completeAssertion(account, cred)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), stored.SignCount)

	persisted, err := passkeys.GetByCredentialID(models.EncodeCredentialID(rawID))
	require.NoError(t, err)
	assert.Equal(t, uint32(11), persisted.SignCount)
}

func TestAssertionAgainstForeignCredential(t *testing.T) {
	svc, accounts, passkeys := newPasskeyServiceForTest(t)
	account := activeAccount(t, accounts)

	rawID := []byte("cred-raw-id")
	require.NoError(t, passkeys.Create(&models.PasskeyCredential{
		CredentialID: models.EncodeCredentialID(rawID),
		AccountID:    "someone-else",
		SignCount:    10,
	}))

	cred := &webauthn.Credential{
		ID:            rawID,
		Authenticator: webauthn.Authenticator{SignCount: 11},
	}
	_, err := svc.(*passkeyService).completeAssertion(account, cred)
	assert.ErrorIs(t, err, ErrPasskeyNotAllowed)
}

func TestRemoveEnforcesOwnership(t *testing.T) {
	svc, _, passkeys := newPasskeyServiceForTest(t)

	require.NoError(t, passkeys.Create(&models.PasskeyCredential{
		CredentialID: "cred-1",
		AccountID:    "acc-1",
	}))

	removed, err := svc.Remove("cred-1", "acc-2")
	require.NoError(t, err)
	assert.False(t, removed, "foreign credential must not be deletable")

	removed, err = svc.Remove("cred-1", "acc-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Remove("cred-1", "acc-1")
	require.NoError(t, err)
	assert.False(t, removed)
}
