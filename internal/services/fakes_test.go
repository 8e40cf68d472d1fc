package services

import (
	"strings"
	"sync"
	"time"

	"certichain/internal/models"
	"certichain/internal/repositories"
)

// fakeAccountRepo is an in-memory stand-in for the Postgres repository.
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

type fakeVerificationRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*models.EmailVerification // keyed by token hash
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

type sentEmail struct {
	kind  string
	to    string
	token string
	event string
}

// fakeEmailService records what would have been sent.
type fakeEmailService struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (f *fakeEmailService) record(e sentEmail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
}

func (f *fakeEmailService) all() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func (f *fakeEmailService) SendVerificationEmail(email, name, token string) error {
	f.record(sentEmail{kind: "verification", to: email, token: token})
	return nil
}

func (f *fakeEmailService) SendPasswordResetEmail(email, name, token string) error {
	f.record(sentEmail{kind: "reset", to: email, token: token})
	return nil
}

func (f *fakeEmailService) SendApprovalEmail(email, name string) error {
	f.record(sentEmail{kind: "approval", to: email})
	return nil
}

func (f *fakeEmailService) SendSecurityAlert(email, name, event string) error {
	f.record(sentEmail{kind: "alert", to: email, event: event})
	return nil
}
