package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"certichain/internal/models"
	"certichain/internal/services"
)

type AdminHandler struct {
	accountService services.AccountService
	activity       services.ActivityService
}

func NewAdminHandler(accountService services.AccountService, activity services.ActivityService) *AdminHandler {
	return &AdminHandler{accountService: accountService, activity: activity}
}

// @Summary      Approve a pending account
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /admin/accounts/{id}/approve [post]
func (h *AdminHandler) Approve(c *gin.Context) {
	h.review(c, true)
}

// @Summary      Reject a pending account
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /admin/accounts/{id}/reject [post]
func (h *AdminHandler) Reject(c *gin.Context) {
	h.review(c, false)
}

func (h *AdminHandler) review(c *gin.Context, approve bool) {
	accountID := c.Param("id")
	adminID, _ := currentAccountID(c)

	var (
		account interface{}
		err     error
		action  string
	)
	if approve {
		account, err = h.accountService.Approve(accountID)
		action = "admin.account_approved"
	} else {
		account, err = h.accountService.Reject(accountID)
		action = "admin.account_rejected"
	}

	if err != nil {
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		case errors.Is(err, services.ErrAccountNotReviewable):
			c.JSON(http.StatusConflict, gin.H{"error": "Account is not awaiting review"})
		default:
			log.Printf("[admin][review] failed for account id=%s: err=%v", accountID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update account"})
		}
		return
	}

	h.activity.Log(c, adminID, action, "target="+accountID)
	c.JSON(http.StatusOK, gin.H{"account": account})
}

// @Summary      Account audit trail
// @Description  Lists an account's activity entries, newest first
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true   "Account id"
// @Param        limit   query     int     false  "Page size (default 50)"
// @Param        offset  query     int     false  "Page offset"
// @Success      200     {object}  map[string]interface{}
// @Router       /admin/accounts/{id}/activity [get]
func (h *AdminHandler) Activity(c *gin.Context) {
	accountID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.activity.Recent(accountID, limit, offset)
	if err != nil {
		log.Printf("[admin][activity] list failed for account id=%s: err=%v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load activity"})
		return
	}
	if entries == nil {
		entries = []*models.ActivityEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
