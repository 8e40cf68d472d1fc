package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"certichain/internal/config"
	"certichain/internal/handlers"
	"certichain/internal/middleware"
	"certichain/internal/models"
	"certichain/internal/pdf"
	"certichain/internal/repositories"
	"certichain/internal/routes"
	"certichain/internal/security"
	"certichain/internal/services"
)

// ---- in-memory fakes ----

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*models.Account)}
}

func (f *fakeAccountRepo) Create(account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if strings.EqualFold(a.Email, account.Email) {
			return repositories.ErrDuplicateEmail
		}
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	cp := *account
	f.accounts[account.ID] = &cp
	return nil
}

func (f *fakeAccountRepo) GetByID(id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountRepo) GetByEmail(email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) UpdateStatus(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		a.Status = status
	}
	return nil
}

func (f *fakeAccountRepo) UpdatePassword(id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		a.PasswordHash = passwordHash
	}
	return nil
}

func (f *fakeAccountRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccountRepo) SetTOTPSecret(id, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		s := secret
		a.TOTPSecret = &s
		a.TOTPEnabled = false
		a.RecoveryCodes = nil
	}
	return nil
}

func (f *fakeAccountRepo) EnableTOTP(id string, recoveryCodeHashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok && a.TOTPSecret != nil {
		a.TOTPEnabled = true
		a.RecoveryCodes = recoveryCodeHashes
	}
	return nil
}

func (f *fakeAccountRepo) DisableTOTP(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		a.TOTPSecret = nil
		a.TOTPEnabled = false
		a.RecoveryCodes = nil
	}
	return nil
}

func (f *fakeAccountRepo) UpdateRecoveryCodes(id string, recoveryCodeHashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		a.RecoveryCodes = recoveryCodeHashes
	}
	return nil
}

type fakePasskeyRepo struct {
	mu    sync.Mutex
	creds map[string]*models.PasskeyCredential
}

func newFakePasskeyRepo() *fakePasskeyRepo {
	return &fakePasskeyRepo{creds: make(map[string]*models.PasskeyCredential)}
}

func (f *fakePasskeyRepo) Create(cred *models.PasskeyCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred.CreatedAt = time.Now()
	cp := *cred
	f.creds[cred.CredentialID] = &cp
	return nil
}

func (f *fakePasskeyRepo) GetByCredentialID(credentialID string) (*models.PasskeyCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[credentialID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakePasskeyRepo) ListByAccount(accountID string) ([]*models.PasskeyCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.PasskeyCredential
	for _, c := range f.creds {
		if c.AccountID == accountID {
			cp := *c
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (f *fakePasskeyRepo) UpdateSignCount(credentialID string, signCount uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.creds[credentialID]; ok {
		c.SignCount = signCount
	}
	return nil
}

func (f *fakePasskeyRepo) Delete(credentialID, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[credentialID]
	if !ok || c.AccountID != accountID {
		return false, nil
	}
	delete(f.creds, credentialID)
	return true, nil
}

type fakeVerificationRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*models.EmailVerification
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{records: make(map[string]*models.EmailVerification)}
}

func (f *fakeVerificationRepo) Create(accountID, tokenHash string, expiresAt time.Time) (*models.EmailVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	v := &models.EmailVerification{
		ID:        f.nextID,
		AccountID: accountID,
		TokenHash: tokenHash,
		SentAt:    time.Now(),
		ExpiresAt: expiresAt,
	}
	f.records[tokenHash] = v
	return v, nil
}

func (f *fakeVerificationRepo) GetByTokenHash(tokenHash string) (*models.EmailVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVerificationRepo) MarkRedeemed(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.records {
		if v.ID == id {
			v.Redeemed = true
		}
	}
	return nil
}

func (f *fakeVerificationRepo) DeleteForAccount(accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, v := range f.records {
		if v.AccountID == accountID {
			delete(f.records, hash)
		}
	}
	return nil
}

type fakeActivityRepo struct {
	mu      sync.Mutex
	entries []*models.ActivityEntry
}

func (f *fakeActivityRepo) Create(entry *models.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeActivityRepo) ListByAccount(accountID string, limit, offset int) ([]*models.ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*models.ActivityEntry
	for _, e := range f.entries {
		if e.AccountID == accountID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (f *fakeActivityRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []string
	for _, e := range f.entries {
		res = append(res, e.Action)
	}
	return res
}

type sentEmail struct {
	kind  string
	to    string
	token string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (f *fakeEmail) record(e sentEmail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
}

func (f *fakeEmail) all() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func (f *fakeEmail) SendVerificationEmail(email, name, token string) error {
	f.record(sentEmail{kind: "verification", to: email, token: token})
	return nil
}

func (f *fakeEmail) SendPasswordResetEmail(email, name, token string) error {
	f.record(sentEmail{kind: "reset", to: email, token: token})
	return nil
}

func (f *fakeEmail) SendApprovalEmail(email, name string) error {
	f.record(sentEmail{kind: "approval", to: email})
	return nil
}

func (f *fakeEmail) SendSecurityAlert(email, name, event string) error {
	f.record(sentEmail{kind: "alert", to: email})
	return nil
}

type fakePDF struct{}

func (fakePDF) GenerateRecoveryCodes(data pdf.RecoveryCodesData) ([]byte, error) {
	return []byte("%PDF-stub"), nil
}

// ---- test server ----

type testEnv struct {
	router   *gin.Engine
	accounts *fakeAccountRepo
	passkeys *fakePasskeyRepo
	emails   *fakeEmail
	activity *fakeActivityRepo
	lockouts security.LockoutStore
	auth     services.AuthService
}

func newTestEnv(t *testing.T, breakGlass config.BreakGlassConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetSigningKey([]byte("test-secret"))

	accounts := newFakeAccountRepo()
	passkeys := newFakePasskeyRepo()
	verifications := newFakeVerificationRepo()
	activity := &fakeActivityRepo{}
	emails := &fakeEmail{}

	lockouts := security.NewLockoutTracker(5, 15*time.Minute, time.Hour)
	challenges := security.NewChallengeStore(security.DefaultChallengeTTL)
	resetTokens := security.NewResetTokenStore()

	authService := services.NewAuthService(time.Hour, 5*time.Minute)
	activityService := services.NewActivityService(activity)
	accountService := services.NewAccountService(accounts, verifications, authService, emails)
	resetService := services.NewPasswordResetService(accounts, resetTokens, lockouts, authService, emails)
	totpService := services.NewTOTPService("CertiChain")
	passkeyService, err := services.NewPasskeyService(config.WebAuthnConfig{
		RPID:          "localhost",
		RPDisplayName: "CertiChain",
		RPOrigins:     []string{"http://localhost:8080"},
	}, passkeys, accounts, challenges)
	require.NoError(t, err)

	authHandler := handlers.NewAuthHandler(accountService, authService, resetService, accounts, passkeys, lockouts, activityService, breakGlass)
	totpHandler := handlers.NewTOTPHandler(accounts, totpService, authService, lockouts, activityService, emails, fakePDF{})
	passkeyHandler := handlers.NewPasskeyHandler(passkeyService, authService, accounts, lockouts, activityService)
	adminHandler := handlers.NewAdminHandler(accountService, activityService)

	router := gin.New()
	routes.SetupRoutes(router, authHandler, totpHandler, passkeyHandler, adminHandler)

	return &testEnv{
		router:   router,
		accounts: accounts,
		passkeys: passkeys,
		emails:   emails,
		activity: activity,
		lockouts: lockouts,
		auth:     authService,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// seedActiveAccount creates an approved account with the given password and
// returns it alongside a valid session token.
func (e *testEnv) seedActiveAccount(t *testing.T, id, email, password string) (*models.Account, string) {
	t.Helper()
	hash, err := e.auth.HashPassword(password)
	require.NoError(t, err)
	account := &models.Account{
		ID:           id,
		Email:        email,
		FullName:     "Test Student",
		PasswordHash: hash,
		Role:         "student",
		Status:       models.StatusActive,
	}
	require.NoError(t, e.accounts.Create(account))
	token, err := e.auth.IssueSessionToken(account)
	require.NoError(t, err)
	return account, token
}
