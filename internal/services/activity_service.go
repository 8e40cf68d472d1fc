package services

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"certichain/internal/models"
	"certichain/internal/repositories"
)

// ActivityService writes audit entries. Log never returns errors to callers:
// a broken audit sink must not abort an auth flow.
type ActivityService interface {
	Log(c *gin.Context, accountID, action, details string)
	// Recent returns an account's audit trail, newest first.
	Recent(accountID string, limit, offset int) ([]*models.ActivityEntry, error)
}

type activityService struct {
	repo repositories.ActivityRepository
}

func NewActivityService(repo repositories.ActivityRepository) ActivityService {
	return &activityService{repo: repo}
}

func (s *activityService) Log(c *gin.Context, accountID, action, details string) {
	entry := &models.ActivityEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Action:    action,
		Details:   details,
	}
	if c != nil {
		entry.IP = c.ClientIP()
		entry.UserAgent = c.Request.UserAgent()
	}
	if err := s.repo.Create(entry); err != nil {
		log.Printf("[activity] warning: failed to record %q for account=%s: %v", action, accountID, err)
	}
}

func (s *activityService) Recent(accountID string, limit, offset int) ([]*models.ActivityEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByAccount(accountID, limit, offset)
}
