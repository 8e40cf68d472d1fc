package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"certichain/internal/models"
	"certichain/internal/repositories"
	"certichain/internal/security"
	"certichain/internal/services"
)

type PasskeyHandler struct {
	passkeyService services.PasskeyService
	authService    services.AuthService
	accounts       repositories.AccountRepository
	lockouts       security.LockoutStore
	activity       services.ActivityService
}

func NewPasskeyHandler(
	passkeyService services.PasskeyService,
	authService services.AuthService,
	accounts repositories.AccountRepository,
	lockouts security.LockoutStore,
	activity services.ActivityService,
) *PasskeyHandler {
	return &PasskeyHandler{
		passkeyService: passkeyService,
		authService:    authService,
		accounts:       accounts,
		lockouts:       lockouts,
		activity:       activity,
	}
}

func (h *PasskeyHandler) loadAccount(c *gin.Context) *models.Account {
	accountID, ok := currentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return nil
	}
	account, err := h.accounts.GetByID(accountID)
	if err != nil {
		log.Printf("[passkey] account lookup failed id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return nil
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return nil
	}
	return account
}

// @Summary      Begin passkey registration
// @Tags         Passkeys
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /auth/passkey/register-options [post]
func (h *PasskeyHandler) RegisterOptions(c *gin.Context) {
	account := h.loadAccount(c)
	if account == nil {
		return
	}

	options, err := h.passkeyService.BeginRegistration(account)
	if err != nil {
		log.Printf("[passkey][register-options] failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start passkey registration"})
		return
	}
	c.JSON(http.StatusOK, options)
}

// @Summary      Finish passkey registration
// @Description  Body is the raw WebAuthn attestation response; label comes from the query string
// @Tags         Passkeys
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        label  query     string  false  "Display label for the new passkey"
// @Success      201    {object}  models.PasskeyCredential
// @Failure      400    {object}  map[string]string
// @Router       /auth/passkey/register-verify [post]
func (h *PasskeyHandler) RegisterVerify(c *gin.Context) {
	account := h.loadAccount(c)
	if account == nil {
		return
	}

	label := c.Query("label")
	if label == "" {
		label = "Passkey"
	}

	cred, err := h.passkeyService.FinishRegistration(account, label, c.Request)
	if err != nil {
		if errors.Is(err, services.ErrChallengeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No pending registration, request new options"})
			return
		}
		log.Printf("[passkey][register-verify] failed for account id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passkey registration failed"})
		return
	}

	h.activity.Log(c, account.ID, "passkey.registered", "label="+label)
	c.JSON(http.StatusCreated, cred)
}

// @Summary      Begin passkey login
// @Description  Usernameless: the browser picks a discoverable credential
// @Tags         Passkeys
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /auth/passkey/login-options [post]
func (h *PasskeyHandler) LoginOptions(c *gin.Context) {
	options, nonce, err := h.passkeyService.BeginLogin()
	if err != nil {
		log.Printf("[passkey][login-options] failed: err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start passkey login"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"options": options,
		"nonce":   nonce,
	})
}

// @Summary      Finish passkey login
// @Description  Body is the raw WebAuthn assertion response; nonce comes from the query string
// @Tags         Passkeys
// @Accept       json
// @Produce      json
// @Param        nonce  query     string  true  "Nonce from login-options"
// @Success      200    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]string
// @Router       /auth/passkey/login-verify [post]
func (h *PasskeyHandler) LoginVerify(c *gin.Context) {
	nonce := c.Query("nonce")
	if nonce == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing nonce"})
		return
	}

	account, _, err := h.passkeyService.FinishLogin(nonce, c.Request)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChallengeNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No pending login, request new options"})
		case errors.Is(err, services.ErrCredentialCloned):
			// The generic message hides the clone detection from the caller.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Passkey not recognized"})
		default:
			log.Printf("[passkey][login-verify] assertion failed: err=%v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Passkey not recognized"})
		}
		return
	}

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

	// A verified assertion is proof of identity.
	h.lockouts.Reset(account.Email)

	// TOTP still gates the session, same as password login.
	if account.TOTPEnabled {
		tempToken, err := h.authService.IssueTempToken(account)
		if err != nil {
			log.Printf("[passkey][login-verify] temp token failed id=%s: err=%v", account.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		h.activity.Log(c, account.ID, "auth.passkey_login.2fa_pending", "")
		c.JSON(http.StatusOK, gin.H{
			"requires2FA": true,
			"tempToken":   tempToken,
		})
		return
	}

	sessionToken, err := h.authService.IssueSessionToken(account)
	if err != nil {
		log.Printf("[passkey][login-verify] session token failed id=%s: err=%v", account.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.activity.Log(c, account.ID, "auth.passkey_login", "")
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   sessionToken,
		"account": account,
	})
}

// @Summary      List registered passkeys
// @Tags         Passkeys
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  models.PasskeyCredential
// @Router       /auth/passkey [get]
func (h *PasskeyHandler) List(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	creds, err := h.passkeyService.List(accountID)
	if err != nil {
		log.Printf("[passkey][list] failed for account id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list passkeys"})
		return
	}
	if creds == nil {
		creds = []*models.PasskeyCredential{}
	}
	c.JSON(http.StatusOK, creds)
}

// @Summary      Delete a passkey
// @Description  Only the owner can delete; a foreign or unknown id is a plain 404
// @Tags         Passkeys
// @Produce      json
// @Security     BearerAuth
// @Param        credential_id  path      string  true  "Credential id"
// @Success      200            {object}  map[string]string
// @Failure      404            {object}  map[string]string
// @Router       /auth/passkey/{credential_id} [delete]
func (h *PasskeyHandler) Delete(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	credentialID := c.Param("credential_id")
	removed, err := h.passkeyService.Remove(credentialID, accountID)
	if err != nil {
		log.Printf("[passkey][delete] failed for account id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete passkey"})
		return
	}
	if !removed {
		// Same answer whether it never existed or belongs to someone else.
		c.JSON(http.StatusNotFound, gin.H{"error": "Passkey not found"})
		return
	}

	h.activity.Log(c, accountID, "passkey.deleted", "credential="+credentialID)
	c.JSON(http.StatusOK, gin.H{"message": "Passkey deleted"})
}
