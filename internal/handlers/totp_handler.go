package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"certichain/internal/middleware"
	"certichain/internal/models"
	"certichain/internal/pdf"
	"certichain/internal/repositories"
	"certichain/internal/security"
	"certichain/internal/services"
)

type TOTPHandler struct {
	accounts    repositories.AccountRepository
	totpService services.TOTPService
	authService services.AuthService
	lockouts    security.LockoutStore
	activity    services.ActivityService
	email       services.EmailService
	pdfGen      pdf.Generator
}

func NewTOTPHandler(
	accounts repositories.AccountRepository,
	totpService services.TOTPService,
	authService services.AuthService,
	lockouts security.LockoutStore,
	activity services.ActivityService,
	email services.EmailService,
	pdfGen pdf.Generator,
) *TOTPHandler {
	return &TOTPHandler{
		accounts:    accounts,
		totpService: totpService,
		authService: authService,
		lockouts:    lockouts,
		activity:    activity,
		email:       email,
		pdfGen:      pdfGen,
	}
}

func (h *TOTPHandler) loadAccount(c *gin.Context) *models.Account {
	accountID, ok := currentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return nil
	}
	account, err := h.accounts.GetByID(accountID)
	if err != nil {
		log.Printf("[2fa] account lookup failed id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return nil
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return nil
	}
	return account
}

// @Summary      Begin 2FA enrollment
// @Description  Generates a TOTP secret and QR code; 2FA stays off until verify-setup
// @Tags         2FA
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  services.TOTPEnrollment
// @Failure      409  {object}  map[string]string
// @Router       /auth/2fa/setup [post]
func (h *TOTPHandler) Setup(c *gin.Context) {
	account := h.loadAccount(c)
	if account == nil {
		return
	}
	if account.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "Two-factor authentication is already enabled"})
		return
	}

	enrollment, err := h.totpService.GenerateEnrollment(account.Email)
	if err != nil {
		log.Printf("[2fa][setup] enrollment failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start 2FA setup"})
		return
	}
	if err := h.accounts.SetTOTPSecret(account.ID, enrollment.Secret); err != nil {
		log.Printf("[2fa][setup] secret store failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start 2FA setup"})
		return
	}

	log.Printf("[2fa][setup] enrollment started for account id=%s", account.ID)
	c.JSON(http.StatusOK, enrollment)
}

// @Summary      Confirm 2FA enrollment
// @Description  Verifies the first code, enables 2FA, and returns the recovery codes once
// @Tags         2FA
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        verify  body      models.TOTPVerifySetupRequest  true  "First authenticator code"
// @Success      200     {object}  map[string]interface{}
// @Failure      401     {object}  map[string]string
// @Failure      409     {object}  map[string]string
// @Router       /auth/2fa/verify-setup [post]
func (h *TOTPHandler) VerifySetup(c *gin.Context) {
	account := h.loadAccount(c)
	if account == nil {
		return
	}
	// A bare valid code must not silently replace the recovery-code set.
	if account.TOTPEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "Two-factor authentication is already enabled"})
		return
	}

	var req models.TOTPVerifySetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if account.TOTPSecret == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two-factor setup has not been started"})
		return
	}
	if !h.totpService.ValidateCode(*account.TOTPSecret, req.Code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication code"})
		return
	}

	codes, hashes, err := h.totpService.GenerateRecoveryCodes()
	if err != nil {
		log.Printf("[2fa][verify-setup] recovery code generation failed: err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable 2FA"})
		return
	}
	if err := h.accounts.EnableTOTP(account.ID, hashes); err != nil {
		log.Printf("[2fa][verify-setup] enable failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable 2FA"})
		return
	}

	h.activity.Log(c, account.ID, "2fa.enabled", "")
	if err := h.email.SendSecurityAlert(account.Email, account.FullName, "two-factor authentication enabled"); err != nil {
		log.Printf("[2fa][verify-setup] warning: alert email failed: %v", err)
	}
	log.Printf("[2fa][verify-setup] enabled for account id=%s", account.ID)

	if req.Format == "pdf" {
		sheet, err := h.pdfGen.GenerateRecoveryCodes(pdf.RecoveryCodesData{
			AccountEmail: account.Email,
			FullName:     account.FullName,
			Codes:        codes,
			GeneratedAt:  time.Now(),
		})
		if err != nil {
			log.Printf("[2fa][verify-setup] pdf render failed: err=%v", err)
			// Fall back to JSON so the codes are not lost.
			c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication enabled", "recovery_codes": codes})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="certichain-recovery-codes.pdf"`)
		c.Data(http.StatusOK, "application/pdf", sheet)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Two-factor authentication enabled",
		"recovery_codes": codes,
	})
}

// @Summary      Complete a 2FA login
// @Description  Exchanges a temp token plus a TOTP or recovery code for a full session
// @Tags         2FA
// @Accept       json
// @Produce      json
// @Param        validate  body      models.TOTPValidateRequest  true  "Temp token and code"
// @Success      200       {object}  map[string]interface{}
// @Failure      401       {object}  map[string]string
// @Router       /auth/2fa/validate [post]
func (h *TOTPHandler) Validate(c *gin.Context) {
	var req models.TOTPValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := middleware.ParseToken(req.TempToken)
	if err != nil {
		if errors.Is(err, middleware.ErrTokenExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please log in again"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	// Only a pending-2FA token may be redeemed here; a full session proves
	// nothing about the second factor.
	if !claims.TwoFactorPending {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	account, err := h.accounts.GetByID(claims.AccountID)
	if err != nil {
		log.Printf("[2fa][validate] lookup failed id=%s: err=%v", claims.AccountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return
	}
	if account == nil || !account.TOTPEnabled || account.TOTPSecret == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	// A matching recovery code is consumed before the session is granted so
	// the same code can never succeed twice.
	if !h.totpService.ValidateCode(*account.TOTPSecret, req.Code) {
		remaining, ok := h.totpService.ConsumeRecoveryCode(account.RecoveryCodes, req.Code)
		if !ok {
			log.Printf("[2fa][validate] invalid code for account id=%s", account.ID)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication code"})
			return
		}
		if err := h.accounts.UpdateRecoveryCodes(account.ID, remaining); err != nil {
			log.Printf("[2fa][validate] recovery code burn failed id=%s: err=%v", account.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete login"})
			return
		}
		h.activity.Log(c, account.ID, "2fa.recovery_code_used", "")
		log.Printf("[2fa][validate] recovery code consumed for account id=%s remaining=%d", account.ID, len(remaining))
	}

	// Completed second factor is proof of identity.
	h.lockouts.Reset(account.Email)

	sessionToken, err := h.authService.IssueSessionToken(account)
	if err != nil {
		log.Printf("[2fa][validate] session token failed id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.activity.Log(c, account.ID, "auth.login.2fa", "second factor accepted")
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   sessionToken,
		"account": account,
	})
}

// @Summary      Disable 2FA
// @Description  Requires the current password, not just an active session
// @Tags         2FA
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        disable  body      models.TOTPDisableRequest  true  "Current password"
// @Success      200      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Router       /auth/2fa/disable [post]
func (h *TOTPHandler) Disable(c *gin.Context) {
	account := h.loadAccount(c)
	if account == nil {
		return
	}

	var req models.TOTPDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.CheckPassword(account.PasswordHash, req.Password); err != nil {
		log.Printf("[2fa][disable] password re-proof failed for account id=%s", account.ID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	if err := h.accounts.DisableTOTP(account.ID); err != nil {
		log.Printf("[2fa][disable] failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disable 2FA"})
		return
	}

	h.activity.Log(c, account.ID, "2fa.disabled", "")
	if err := h.email.SendSecurityAlert(account.Email, account.FullName, "two-factor authentication disabled"); err != nil {
		log.Printf("[2fa][disable] warning: alert email failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Two-factor authentication disabled"})
}
