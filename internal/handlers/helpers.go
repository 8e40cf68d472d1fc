package handlers

import "github.com/gin-gonic/gin"

// currentAccountID reads the account id the auth middleware placed in the
// request context.
func currentAccountID(c *gin.Context) (string, bool) {
	v, exists := c.Get("account_id")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
