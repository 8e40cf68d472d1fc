package app

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"certichain/internal/config"
	"certichain/internal/handlers"
	"certichain/internal/middleware"
	"certichain/internal/pdf"
	"certichain/internal/repositories"
	"certichain/internal/routes"
	"certichain/internal/security"
	"certichain/internal/services"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "certichain/docs"
)

func Run() {
	cfg := config.LoadConfig()

	middleware.SetSigningKey([]byte(cfg.JWT.Secret))

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	if err := repositories.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	// === Repos ===
	accountRepo := repositories.NewAccountRepository(db)
	passkeyRepo := repositories.NewPasskeyRepository(db)
	verificationRepo := repositories.NewEmailVerificationRepository(db)
	activityRepo := repositories.NewActivityRepository(db)

	// === In-memory security stores ===
	lockouts := security.NewLockoutTracker(
		cfg.Security.Lockout.MaxAttempts,
		cfg.Security.Lockout.LockDuration,
		cfg.Security.Lockout.IdleEviction,
	)
	challenges := security.NewChallengeStore(security.DefaultChallengeTTL)
	resetTokens := security.NewResetTokenStore()

	// === Services ===
	authService := services.NewAuthService(cfg.JWT.SessionTTL, cfg.JWT.TempTTL)
	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
		cfg.Server.BaseURL,
	)
	activityService := services.NewActivityService(activityRepo)
	accountService := services.NewAccountService(accountRepo, verificationRepo, authService, emailService)
	resetService := services.NewPasswordResetService(accountRepo, resetTokens, lockouts, authService, emailService)
	totpService := services.NewTOTPService(cfg.WebAuthn.RPDisplayName)
	passkeyService, err := services.NewPasskeyService(cfg.WebAuthn, passkeyRepo, accountRepo, challenges)
	if err != nil {
		log.Fatal("Failed to configure WebAuthn: ", err)
	}

	pdfGen := pdf.NewDocumentGenerator()

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(
		accountService,
		authService,
		resetService,
		accountRepo,
		passkeyRepo,
		lockouts,
		activityService,
		cfg.Security.BreakGlass,
	)
	totpHandler := handlers.NewTOTPHandler(
		accountRepo,
		totpService,
		authService,
		lockouts,
		activityService,
		emailService,
		pdfGen,
	)
	passkeyHandler := handlers.NewPasskeyHandler(
		passkeyService,
		authService,
		accountRepo,
		lockouts,
		activityService,
	)
	adminHandler := handlers.NewAdminHandler(accountService, activityService)

	// === Background sweeps ===
	startSweeps(lockouts, challenges, resetTokens)

	// === Gin ===
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Routes (JWT/RBAC inside SetupRoutes)
	routes.SetupRoutes(
		router,
		authHandler,
		totpHandler,
		passkeyHandler,
		adminHandler,
	)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Server listening on %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

// startSweeps runs the eviction loops for the in-memory stores. Each runs on
// its own ticker; they only delete already-expired entries, so no coordination
// is needed.
func startSweeps(lockouts security.LockoutStore, challenges security.ChallengeStore, resetTokens security.ResetTokenStore) {
	go func() {
		for range time.Tick(10 * time.Minute) {
			if n := lockouts.Sweep(); n > 0 {
				log.Printf("[sweep][lockout] evicted %d idle records", n)
			}
		}
	}()
	go func() {
		for range time.Tick(time.Minute) {
			if n := challenges.Sweep(); n > 0 {
				log.Printf("[sweep][challenges] evicted %d expired challenges", n)
			}
		}
	}()
	go func() {
		for range time.Tick(10 * time.Minute) {
			if n := resetTokens.Sweep(); n > 0 {
				log.Printf("[sweep][reset-tokens] evicted %d expired tokens", n)
			}
		}
	}()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
