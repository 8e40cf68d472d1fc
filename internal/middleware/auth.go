package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var jwtKey []byte

// SetSigningKey installs the HMAC key from config before the router starts.
func SetSigningKey(key []byte) { jwtKey = key }

// SigningKey returns the installed HMAC key for token issuance.
func SigningKey() []byte { return jwtKey }

// Claims covers both token classes. TwoFactorPending marks the short-lived
// token issued after a correct password when TOTP is enabled; it is accepted
// only by the 2FA-validate endpoint, never by this middleware.
type Claims struct {
	AccountID        string `json:"account_id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	TwoFactorPending bool   `json:"two_factor_pending,omitempty"`
	jwt.RegisteredClaims
}

var (
	// ErrTokenExpired: the signature checked out but the token is stale.
	// Callers answer "session expired, log in again".
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid: malformed, tampered, or wrong algorithm.
	ErrTokenInvalid = errors.New("invalid token")
)

// ParseToken validates a signed token and returns its claims. Expired and
// malformed tokens are distinct failures.
func ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		// accept HMAC only
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return jwtKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// skip preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}

		claims, err := ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please log in again"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		// A pending-2FA token is not a session; it is only redeemable at
		// the 2FA-validate endpoint, which reads it from the request body.
		if claims.TwoFactorPending {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Two-factor verification required"})
			return
		}

		if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(time.Now()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please log in again"})
			return
		}

		c.Set("account_id", claims.AccountID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)

		c.Next()
	}
}
