package services

import (
	"errors"
	"log"
	"time"

	"certichain/internal/repositories"
	"certichain/internal/security"
	"certichain/internal/utils"
)

var ErrResetTokenInvalid = errors.New("reset token is invalid or expired")

type PasswordResetService interface {
	// RequestReset emails a reset token when the address is known. The return
	// is identical either way so the endpoint never leaks whether an email
	// is registered.
	RequestReset(email string)
	// CompleteReset redeems a token exactly once and installs the new
	// password. A successful reset also clears any login lockout.
	CompleteReset(token, newPassword string) error
}

type passwordResetService struct {
	accounts repositories.AccountRepository
	tokens   security.ResetTokenStore
	lockouts security.LockoutStore
	auth     AuthService
	email    EmailService
	tokenTTL time.Duration
}

func NewPasswordResetService(
	accounts repositories.AccountRepository,
	tokens security.ResetTokenStore,
	lockouts security.LockoutStore,
	auth AuthService,
	email EmailService,
) PasswordResetService {
	return &passwordResetService{
		accounts: accounts,
		tokens:   tokens,
		lockouts: lockouts,
		auth:     auth,
		email:    email,
		tokenTTL: security.DefaultResetTokenTTL,
	}
}

func (s *passwordResetService) RequestReset(email string) {
	account, err := s.accounts.GetByEmail(email)
	if err != nil {
		log.Printf("[reset][request] lookup failed for %s: %v", email, err)
		return
	}
	if account == nil {
		// Unknown address: same outward behavior, nothing sent.
		return
	}

	token, err := utils.NewOpaqueToken(32)
	if err != nil {
		log.Printf("[reset][request] token generation failed: %v", err)
		return
	}
	s.tokens.Put(token, security.ResetGrant{
		AccountID: account.ID,
		Email:     account.Email,
		FullName:  account.FullName,
		ExpiresAt: time.Now().Add(s.tokenTTL),
	})

	if err := s.email.SendPasswordResetEmail(account.Email, account.FullName, token); err != nil {
		log.Printf("[reset][request] email to %s failed: %v", account.Email, err)
	}
}

func (s *passwordResetService) CompleteReset(token, newPassword string) error {
	grant, ok := s.tokens.Take(token)
	if !ok {
		return ErrResetTokenInvalid
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(grant.AccountID, hash); err != nil {
		return err
	}

	// The reset token proved control of the mailbox.
	s.lockouts.Reset(grant.Email)

	if err := s.email.SendSecurityAlert(grant.Email, grant.FullName, "password reset completed"); err != nil {
		log.Printf("[reset][complete] warning: alert email failed: %v", err)
	}
	log.Printf("[reset][complete] password reset for account id=%s", grant.AccountID)
	return nil
}
