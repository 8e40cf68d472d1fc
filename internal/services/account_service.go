package services

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"certichain/internal/authz"
	"certichain/internal/models"
	"certichain/internal/repositories"
	"certichain/internal/utils"
)

const verificationTokenTTL = 24 * time.Hour

var (
	ErrEmailTaken           = errors.New("email already registered")
	ErrVerificationInvalid  = errors.New("verification link is invalid or expired")
	ErrAccountNotFound      = errors.New("account not found")
	ErrWrongPassword        = errors.New("current password is incorrect")
	ErrAccountNotReviewable = errors.New("account is not awaiting review")
)

type AccountService interface {
	// Register creates a pending account and emails a verification link.
	Register(req *models.RegisterRequest) (*models.Account, error)
	// VerifyEmail redeems a verification token and moves the account from
	// pending_email_verification to pending_approval.
	VerifyEmail(token string) (*models.Account, error)
	// ResendVerification issues a fresh verification link for an account
	// still awaiting email verification. Silent for unknown addresses and
	// accounts already past the email gate.
	ResendVerification(email string)
	ChangePassword(accountID, currentPassword, newPassword string) error
	// Approve activates a pending_approval account; Reject closes it.
	Approve(accountID string) (*models.Account, error)
	Reject(accountID string) (*models.Account, error)
}

type accountService struct {
	accounts      repositories.AccountRepository
	verifications repositories.EmailVerificationRepository
	auth          AuthService
	email         EmailService
}

func NewAccountService(
	accounts repositories.AccountRepository,
	verifications repositories.EmailVerificationRepository,
	auth AuthService,
	email EmailService,
) AccountService {
	return &accountService{
		accounts:      accounts,
		verifications: verifications,
		auth:          auth,
		email:         email,
	}
}

func (s *accountService) Register(req *models.RegisterRequest) (*models.Account, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Role:         authz.RoleStudent,
		Status:       models.StatusPendingEmail,
	}

	// The unique index decides the duplicate race, not a pre-check.
	if err := s.accounts.Create(account); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	token, err := utils.NewOpaqueToken(32)
	if err != nil {
		s.rollbackRegistration(account.ID, err)
		return nil, err
	}
	if _, err := s.verifications.Create(account.ID, utils.HashToken(token), time.Now().Add(verificationTokenTTL)); err != nil {
		s.rollbackRegistration(account.ID, err)
		return nil, err
	}

	if err := s.email.SendVerificationEmail(account.Email, account.FullName, token); err != nil {
		// The account exists either way; the user can request a resend.
		log.Printf("[account][register] warning: verification email to %s failed: %v", account.Email, err)
	}

	log.Printf("[account][register] created account id=%s status=%s", account.ID, account.Status)
	return account, nil
}

// rollbackRegistration removes the half-created account when the verification
// record could not be written, so the email address is not permanently burned
// by a row nobody can ever verify.
func (s *accountService) rollbackRegistration(accountID string, cause error) {
	log.Printf("[account][register] rolling back account id=%s: err=%v", accountID, cause)
	if err := s.accounts.Delete(accountID); err != nil {
		log.Printf("[account][register] warning: rollback delete failed for account id=%s: err=%v", accountID, err)
	}
}

func (s *accountService) ResendVerification(email string) {
	account, err := s.accounts.GetByEmail(email)
	if err != nil {
		log.Printf("[account][resend-verification] lookup failed for email=%q: err=%v", email, err)
		return
	}
	// Same silence for unknown addresses and accounts already past the gate.
	if account == nil || account.Status != models.StatusPendingEmail {
		return
	}

	token, err := utils.NewOpaqueToken(32)
	if err != nil {
		log.Printf("[account][resend-verification] token generation failed: err=%v", err)
		return
	}
	// A resend supersedes every earlier link.
	if err := s.verifications.DeleteForAccount(account.ID); err != nil {
		log.Printf("[account][resend-verification] cleanup failed for account id=%s: err=%v", account.ID, err)
		return
	}
	if _, err := s.verifications.Create(account.ID, utils.HashToken(token), time.Now().Add(verificationTokenTTL)); err != nil {
		log.Printf("[account][resend-verification] token store failed for account id=%s: err=%v", account.ID, err)
		return
	}
	if err := s.email.SendVerificationEmail(account.Email, account.FullName, token); err != nil {
		log.Printf("[account][resend-verification] warning: email to %s failed: %v", account.Email, err)
	}
	log.Printf("[account][resend-verification] new token issued for account id=%s", account.ID)
}

func (s *accountService) VerifyEmail(token string) (*models.Account, error) {
	record, err := s.verifications.GetByTokenHash(utils.HashToken(token))
	if err != nil {
		return nil, err
	}
	if record == nil || record.Redeemed || time.Now().After(record.ExpiresAt) {
		return nil, ErrVerificationInvalid
	}

	account, err := s.accounts.GetByID(record.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrVerificationInvalid
	}

	if err := s.verifications.MarkRedeemed(record.ID); err != nil {
		return nil, err
	}

	// Already past the email gate: redeeming again is harmless.
	if account.Status == models.StatusPendingEmail {
		if err := s.accounts.UpdateStatus(account.ID, models.StatusPendingApproval); err != nil {
			return nil, err
		}
		account.Status = models.StatusPendingApproval
	}

	log.Printf("[account][verify-email] account id=%s now status=%s", account.ID, account.Status)
	return account, nil
}

func (s *accountService) ChangePassword(accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if err := s.auth.CheckPassword(account.PasswordHash, currentPassword); err != nil {
		return ErrWrongPassword
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(accountID, hash); err != nil {
		return err
	}

	if err := s.email.SendSecurityAlert(account.Email, account.FullName, "password changed"); err != nil {
		log.Printf("[account][change-password] warning: alert email failed: %v", err)
	}
	return nil
}

func (s *accountService) Approve(accountID string) (*models.Account, error) {
	account, err := s.reviewable(accountID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateStatus(accountID, models.StatusActive); err != nil {
		return nil, err
	}
	account.Status = models.StatusActive

	if err := s.email.SendApprovalEmail(account.Email, account.FullName); err != nil {
		log.Printf("[account][approve] warning: approval email failed: %v", err)
	}
	log.Printf("[account][approve] account id=%s activated", accountID)
	return account, nil
}

func (s *accountService) Reject(accountID string) (*models.Account, error) {
	account, err := s.reviewable(accountID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateStatus(accountID, models.StatusRejected); err != nil {
		return nil, err
	}
	account.Status = models.StatusRejected
	log.Printf("[account][reject] account id=%s rejected", accountID)
	return account, nil
}

func (s *accountService) reviewable(accountID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if account.Status != models.StatusPendingApproval {
		return nil, ErrAccountNotReviewable
	}
	return account, nil
}
