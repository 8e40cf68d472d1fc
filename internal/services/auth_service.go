package services

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"certichain/internal/middleware"
	"certichain/internal/models"
)

type AuthService interface {
	HashPassword(plain string) (string, error)
	// CheckPassword is a constant-time comparison against the stored hash.
	CheckPassword(hash, plain string) error
	// IssueSessionToken returns the long-lived full session token.
	IssueSessionToken(account *models.Account) (string, error)
	// IssueTempToken returns the 5-minute pending-2FA token. It carries the
	// two_factor_pending marker and is rejected everywhere except the
	// 2FA-validate endpoint.
	IssueTempToken(account *models.Account) (string, error)
}

type authService struct {
	sessionTTL time.Duration
	tempTTL    time.Duration
}

func NewAuthService(sessionTTL, tempTTL time.Duration) AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	if tempTTL <= 0 {
		tempTTL = 5 * time.Minute
	}
	return &authService{sessionTTL: sessionTTL, tempTTL: tempTTL}
}

func (s *authService) HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *authService) CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

func (s *authService) IssueSessionToken(account *models.Account) (string, error) {
	claims := &middleware.Claims{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.sessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(middleware.SigningKey())
}

func (s *authService) IssueTempToken(account *models.Account) (string, error) {
	claims := &middleware.Claims{
		AccountID:        account.ID,
		Email:            account.Email,
		Role:             account.Role,
		TwoFactorPending: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tempTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(middleware.SigningKey())
}
