package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"certichain/internal/authz"
	"certichain/internal/config"
	"certichain/internal/models"
	"certichain/internal/repositories"
	"certichain/internal/security"
	"certichain/internal/services"
)

type AuthHandler struct {
	accountService services.AccountService
	authService    services.AuthService
	resetService   services.PasswordResetService
	accounts       repositories.AccountRepository
	passkeys       repositories.PasskeyRepository
	lockouts       security.LockoutStore
	activity       services.ActivityService
	breakGlass     config.BreakGlassConfig
}

func NewAuthHandler(
	accountService services.AccountService,
	authService services.AuthService,
	resetService services.PasswordResetService,
	accounts repositories.AccountRepository,
	passkeys repositories.PasskeyRepository,
	lockouts security.LockoutStore,
	activity services.ActivityService,
	breakGlass config.BreakGlassConfig,
) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		authService:    authService,
		resetService:   resetService,
		accounts:       accounts,
		passkeys:       passkeys,
		lockouts:       lockouts,
		activity:       activity,
		breakGlass:     breakGlass,
	}
}

// @Summary      Register a new account
// @Description  Creates a pending account and sends an email verification link
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        register  body      models.RegisterRequest  true  "Registration data"
// @Success      201       {object}  map[string]interface{}
// @Failure      400       {object}  map[string]string
// @Failure      409       {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][register] bad request: bind json failed: err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	account, err := h.accountService.Register(&req)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		log.Printf("[auth][register] failed for email=%q: err=%v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	h.activity.Log(c, account.ID, "account.register", "account created, verification email sent")
	c.JSON(http.StatusCreated, gin.H{
		"message": "Account created. Check your email to verify your address.",
		"account": account,
	})
}

// @Summary      Verify email address
// @Tags         Auth
// @Produce      json
// @Param        token  query     string  true  "Verification token"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Router       /auth/verify-email [get]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing verification token"})
		return
	}

	account, err := h.accountService.VerifyEmail(token)
	if err != nil {
		if errors.Is(err, services.ErrVerificationInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Verification link is invalid or expired"})
			return
		}
		log.Printf("[auth][verify-email] failed: err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify email"})
		return
	}

	h.activity.Log(c, account.ID, "account.verify_email", "email verified, awaiting approval")
	c.JSON(http.StatusOK, gin.H{
		"message": "Email verified. Your account is awaiting administrator approval.",
		"status":  account.Status,
	})
}

// @Summary      Resend the verification email
// @Description  Always returns the same generic response regardless of account state
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        resend  body      models.ResendVerificationRequest  true  "Email address"
// @Success      200     {object}  map[string]string
// @Router       /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req models.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.accountService.ResendVerification(strings.TrimSpace(req.Email))

	// Identical body whether the address is pending, verified, or unknown.
	c.JSON(http.StatusOK, gin.H{"message": "If that email is awaiting verification, a new link has been sent."})
}

// @Summary      Log in with email and password
// @Description  Returns a session token, or a temp token when 2FA is enabled
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Credentials"
// @Success      200    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]string
// @Failure      403    {object}  map[string]string
// @Failure      429    {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][login] bad request: bind json failed: err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)
	log.Printf("[auth][login] attempt email=%q", email)

	// The operator escape hatch skips the store and the lockout tracker.
	// Every use lands in the audit log.
	if h.tryBreakGlass(c, email, req.Password) {
		return
	}

	if locked, remaining := h.lockouts.Check(email); locked {
		log.Printf("[auth][login] locked out email=%q remaining=%s", email, remaining.Truncate(time.Second))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "Too many failed attempts, try again later",
			"retry_after_seconds": int(remaining.Seconds()) + 1,
		})
		return
	}

	account, err := h.accounts.GetByEmail(email)
	if err != nil {
		log.Printf("[auth][login] lookup failed for email=%q: err=%v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if account == nil {
		// Unknown address still counts a failed attempt so probing for
		// existence is indistinguishable from a wrong password.
		h.recordFailure(c, email)
		return
	}

	if err := h.authService.CheckPassword(account.PasswordHash, req.Password); err != nil {
		log.Printf("[auth][login] password mismatch for account id=%s", account.ID)
		h.recordFailure(c, email)
		return
	}

	// Correct password is proof of identity.
	h.lockouts.Reset(email)

	switch account.Status {
	case models.StatusActive:
	case models.StatusPendingEmail:
		c.JSON(http.StatusForbidden, gin.H{"error": "Email not verified", "status": account.Status})
		return
	case models.StatusPendingApproval:
		c.JSON(http.StatusForbidden, gin.H{"error": "Account awaiting approval", "status": account.Status})
		return
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is not active", "status": account.Status})
		return
	}

	if account.TOTPEnabled {
		tempToken, err := h.authService.IssueTempToken(account)
		if err != nil {
			log.Printf("[auth][login] temp token failed for account id=%s: err=%v", account.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		h.activity.Log(c, account.ID, "auth.login.2fa_pending", "password accepted, awaiting second factor")
		c.JSON(http.StatusOK, gin.H{
			"requires2FA": true,
			"tempToken":   tempToken,
		})
		return
	}

	sessionToken, err := h.authService.IssueSessionToken(account)
	if err != nil {
		log.Printf("[auth][login] session token failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.activity.Log(c, account.ID, "auth.login", "password login")
	log.Printf("[auth][login] success account id=%s took=%s", account.ID, time.Since(start).Truncate(time.Millisecond))
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   sessionToken,
		"account": account,
	})
}

func (h *AuthHandler) recordFailure(c *gin.Context, email string) {
	attemptsLeft, lockedFor := h.lockouts.RecordFailure(email)
	if lockedFor > 0 {
		log.Printf("[auth][login] threshold reached for email=%q locked_for=%s", email, lockedFor)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "Too many failed attempts, try again later",
			"retry_after_seconds": int(lockedFor.Seconds()),
		})
		return
	}
	log.Printf("[auth][login] invalid credentials email=%q attempts_left=%d", email, attemptsLeft)
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials."})
}

func (h *AuthHandler) tryBreakGlass(c *gin.Context, email, password string) bool {
	bg := h.breakGlass
	if !bg.Enabled || bg.Email == "" || bg.PasswordHash == "" {
		return false
	}
	if !strings.EqualFold(email, bg.Email) {
		return false
	}
	if bcrypt.CompareHashAndPassword([]byte(bg.PasswordHash), []byte(password)) != nil {
		return false
	}

	operator := &models.Account{
		ID:     "break-glass-operator",
		Email:  bg.Email,
		Role:   authz.RoleAdmin,
		Status: models.StatusActive,
	}
	token, err := h.authService.IssueSessionToken(operator)
	if err != nil {
		log.Printf("[auth][break-glass] token failed: err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return true
	}

	log.Printf("[auth][break-glass] OPERATOR LOGIN email=%q", bg.Email)
	h.activity.Log(c, operator.ID, "auth.break_glass", "operator escape-hatch login")
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
	})
	return true
}

// @Summary      Log out
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]string
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	accountID, _ := currentAccountID(c)
	// Sessions are stateless tokens; logout is an audit event and a signal
	// for the client to drop its copy.
	h.activity.Log(c, accountID, "auth.logout", "")
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// @Summary      Current account profile
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	account, err := h.accounts.GetByID(accountID)
	if err != nil {
		log.Printf("[auth][me] lookup failed for account id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	passkeys, err := h.passkeys.ListByAccount(accountID)
	if err != nil {
		log.Printf("[auth][me] passkey list failed for account id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":       account,
		"is_admin":      authz.IsAdmin(account.Role),
		"totp_enabled":  account.TOTPEnabled,
		"passkey_count": len(passkeys),
	})
}

// @Summary      Change password
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        change  body      models.ChangePasswordRequest  true  "Old and new password"
// @Success      200     {object}  map[string]string
// @Failure      401     {object}  map[string]string
// @Router       /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.accountService.ChangePassword(accountID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrWrongPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		case errors.Is(err, services.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		default:
			log.Printf("[auth][change-password] failed for account id=%s: err=%v", accountID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
		}
		return
	}

	h.activity.Log(c, accountID, "auth.change_password", "")
	c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
}

// @Summary      Request a password reset
// @Description  Always returns the same generic response regardless of whether the email exists
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        forgot  body      models.ForgotPasswordRequest  true  "Email address"
// @Success      200     {object}  map[string]string
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.resetService.RequestReset(strings.TrimSpace(req.Email))

	// Identical body whether or not the address is registered.
	c.JSON(http.StatusOK, gin.H{"message": "If that email is registered, a reset link has been sent."})
}

// @Summary      Complete a password reset
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        reset  body      models.ResetPasswordRequest  true  "Reset token and new password"
// @Success      200    {object}  map[string]string
// @Failure      400    {object}  map[string]string
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.resetService.CompleteReset(req.Token, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrResetTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Reset token is invalid or expired"})
			return
		}
		log.Printf("[auth][reset-password] failed: err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	h.activity.Log(c, "", "auth.reset_password", "password reset completed")
	c.JSON(http.StatusOK, gin.H{"message": "Password reset. You can now log in."})
}
