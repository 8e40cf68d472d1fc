package services

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"certichain/internal/config"
	"certichain/internal/models"
	"certichain/internal/repositories"
	"certichain/internal/security"
	"certichain/internal/utils"
)

var (
	ErrChallengeNotFound = errors.New("no pending challenge for this ceremony")
	// ErrCredentialCloned: the authenticator reported a sign counter at or
	// below the stored one, which indicates a cloned key. The assertion is
	// rejected outright.
	ErrCredentialCloned  = errors.New("credential sign counter regressed")
	ErrPasskeyNotAllowed = errors.New("passkey not recognized")
)

type PasskeyService interface {
	// BeginRegistration opens a registration ceremony for a logged-in
	// account. Already-registered credentials are excluded so the browser
	// will not re-enroll the same authenticator.
	BeginRegistration(account *models.Account) (*protocol.CredentialCreation, error)
	// FinishRegistration verifies the attestation response and persists the
	// new credential under the given label.
	FinishRegistration(account *models.Account, label string, r *http.Request) (*models.PasskeyCredential, error)

	// BeginLogin opens a usernameless (discoverable) ceremony. The returned
	// nonce keys the pending challenge and must come back with the response.
	BeginLogin() (*protocol.CredentialAssertion, string, error)
	// FinishLogin verifies the assertion, resolves the account from the
	// user handle, and persists the updated sign counter.
	FinishLogin(nonce string, r *http.Request) (*models.Account, *models.PasskeyCredential, error)

	List(accountID string) ([]*models.PasskeyCredential, error)
	// Remove deletes a credential only when it belongs to accountID.
	Remove(credentialID, accountID string) (bool, error)
}

type passkeyService struct {
	webAuthn   *webauthn.WebAuthn
	passkeys   repositories.PasskeyRepository
	accounts   repositories.AccountRepository
	challenges security.ChallengeStore
}

func NewPasskeyService(
	cfg config.WebAuthnConfig,
	passkeys repositories.PasskeyRepository,
	accounts repositories.AccountRepository,
	challenges security.ChallengeStore,
) (PasskeyService, error) {
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	return &passkeyService{
		webAuthn:   webAuthn,
		passkeys:   passkeys,
		accounts:   accounts,
		challenges: challenges,
	}, nil
}

// webauthnUser adapts an account and its stored credentials to the library's
// user interface. The account id doubles as the user handle.
type webauthnUser struct {
	account *models.Account
	creds   []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.account.ID) }
func (u *webauthnUser) WebAuthnName() string                       { return u.account.Email }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.account.FullName }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (s *passkeyService) loadUser(account *models.Account) (*webauthnUser, []*models.PasskeyCredential, error) {
	stored, err := s.passkeys.ListByAccount(account.ID)
	if err != nil {
		return nil, nil, err
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, p := range stored {
		creds = append(creds, p.ToWebauthn())
	}
	return &webauthnUser{account: account, creds: creds}, stored, nil
}

func registrationKey(accountID string) string { return "register:" + accountID }
func loginKey(nonce string) string            { return "login:discoverable:" + nonce }

func (s *passkeyService) BeginRegistration(account *models.Account) (*protocol.CredentialCreation, error) {
	user, _, err := s.loadUser(account)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(user.creds))
	for _, c := range user.creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
		})
	}

	options, session, err := s.webAuthn.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, err
	}
	s.challenges.Put(registrationKey(account.ID), session)
	return options, nil
}

func (s *passkeyService) FinishRegistration(account *models.Account, label string, r *http.Request) (*models.PasskeyCredential, error) {
	session, ok := s.challenges.Take(registrationKey(account.ID))
	if !ok {
		return nil, ErrChallengeNotFound
	}

	user, _, err := s.loadUser(account)
	if err != nil {
		return nil, err
	}

	cred, err := s.webAuthn.FinishRegistration(user, *session, r)
	if err != nil {
		return nil, err
	}

	stored := models.FromWebauthn(account.ID, label, cred)
	if err := s.passkeys.Create(stored); err != nil {
		return nil, err
	}
	log.Printf("[passkey][register] account id=%s enrolled credential %s", account.ID, stored.CredentialID)
	return stored, nil
}

func (s *passkeyService) BeginLogin() (*protocol.CredentialAssertion, string, error) {
	options, session, err := s.webAuthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, "", err
	}
	nonce, err := utils.NewOpaqueToken(16)
	if err != nil {
		return nil, "", err
	}
	s.challenges.Put(loginKey(nonce), session)
	return options, nonce, nil
}

func (s *passkeyService) FinishLogin(nonce string, r *http.Request) (*models.Account, *models.PasskeyCredential, error) {
	session, ok := s.challenges.Take(loginKey(nonce))
	if !ok {
		return nil, nil, ErrChallengeNotFound
	}

	var matched *models.Account

	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		account, err := s.accounts.GetByID(string(userHandle))
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ErrPasskeyNotAllowed
		}
		user, _, err := s.loadUser(account)
		if err != nil {
			return nil, err
		}
		matched = account
		return user, nil
	}

	cred, err := s.webAuthn.FinishDiscoverableLogin(handler, *session, r)
	if err != nil {
		return nil, nil, err
	}
	if matched == nil {
		return nil, nil, ErrPasskeyNotAllowed
	}

	stored, err := s.completeAssertion(matched, cred)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[passkey][login] account id=%s authenticated with credential %s", matched.ID, stored.CredentialID)
	return matched, stored, nil
}

// completeAssertion checks the verified credential against storage and
// persists the advanced sign counter. A regressed counter never reaches the
// store: the library flags it as CloneWarning instead of erroring, and a
// cloned authenticator must not log in.
func (s *passkeyService) completeAssertion(matched *models.Account, cred *webauthn.Credential) (*models.PasskeyCredential, error) {
	credentialID := models.EncodeCredentialID(cred.ID)
	stored, err := s.passkeys.GetByCredentialID(credentialID)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.AccountID != matched.ID {
		return nil, ErrPasskeyNotAllowed
	}

	if cred.Authenticator.CloneWarning {
		log.Printf("[passkey][login] clone warning on credential %s (account id=%s), rejecting", credentialID, matched.ID)
		return nil, ErrCredentialCloned
	}

	if err := s.passkeys.UpdateSignCount(credentialID, cred.Authenticator.SignCount); err != nil {
		return nil, err
	}
	stored.SignCount = cred.Authenticator.SignCount
	return stored, nil
}

func (s *passkeyService) List(accountID string) ([]*models.PasskeyCredential, error) {
	return s.passkeys.ListByAccount(accountID)
}

func (s *passkeyService) Remove(credentialID, accountID string) (bool, error) {
	return s.passkeys.Delete(credentialID, accountID)
}
