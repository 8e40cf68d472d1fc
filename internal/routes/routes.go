package routes

import (
	"github.com/gin-gonic/gin"

	"certichain/internal/authz"
	"certichain/internal/handlers"
	"certichain/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	totpHandler *handlers.TOTPHandler,
	passkeyHandler *handlers.PasskeyHandler,
	adminHandler *handlers.AdminHandler,
) *gin.Engine {

	// ---- public
	r.POST("/auth/register", authHandler.Register)
	r.GET("/auth/verify-email", authHandler.VerifyEmail)
	r.POST("/auth/resend-verification", authHandler.ResendVerification)
	r.POST("/auth/login", authHandler.Login)
	r.POST("/auth/forgot-password", authHandler.ForgotPassword)
	r.POST("/auth/reset-password", authHandler.ResetPassword)

	// 2FA validate redeems the temp token from the body, not a session.
	r.POST("/auth/2fa/validate", totpHandler.Validate)

	// Usernameless passkey login is public by design.
	r.POST("/auth/passkey/login-options", passkeyHandler.LoginOptions)
	r.POST("/auth/passkey/login-verify", passkeyHandler.LoginVerify)

	// ---- protected
	r.Use(middleware.AuthMiddleware())

	auth := r.Group("/auth")
	{
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", authHandler.Me)
		auth.POST("/change-password", authHandler.ChangePassword)

		auth.POST("/2fa/setup", totpHandler.Setup)
		auth.POST("/2fa/verify-setup", totpHandler.VerifySetup)
		auth.POST("/2fa/disable", totpHandler.Disable)

		auth.POST("/passkey/register-options", passkeyHandler.RegisterOptions)
		auth.POST("/passkey/register-verify", passkeyHandler.RegisterVerify)
		auth.GET("/passkey", passkeyHandler.List)
		auth.DELETE("/passkey/:credential_id", passkeyHandler.Delete)
	}

	// ADMIN
	admin := r.Group("/admin", middleware.RequireRoles(authz.RoleAdmin))
	{
		admin.POST("/accounts/:id/approve", adminHandler.Approve)
		admin.POST("/accounts/:id/reject", adminHandler.Reject)
		admin.GET("/accounts/:id/activity", adminHandler.Activity)
	}

	return r
}
