package models

import "time"

// Account lifecycle: registration creates a pending_email_verification record,
// redeeming the email token moves it to pending_approval, and only an admin
// approval makes it active. rejected is terminal.
const (
	StatusPendingEmail    = "pending_email_verification"
	StatusPendingApproval = "pending_approval"
	StatusActive          = "active"
	StatusRejected        = "rejected"
)

type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	PasswordHash string `json:"-"` // never serialized
	Role         string `json:"role"`
	Status       string `json:"status"`

	// 2FA state. TOTPSecret is set during setup but TOTPEnabled only flips
	// after the enrollment code is verified; RecoveryCodes holds bcrypt
	// hashes of the unused codes and exists only while TOTP is enabled.
	TOTPSecret    *string  `json:"-"`
	TOTPEnabled   bool     `json:"totp_enabled"`
	RecoveryCodes []string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}
