package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jahboukie/ndarite/config"
	"github.com/jahboukie/ndarite/handler"
	"github.com/jahboukie/ndarite/middleware"
	"github.com/jahboukie/ndarite/pkg/logger"
	"github.com/jahboukie/ndarite/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize services
	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize MINIO service", "error", err)
		os.Exit(1)
	}

	// Ensure bucket exists
	if err := minioSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure MINIO bucket", "error", err)
		os.Exit(1)
	}

	store, err := service.NewStore()
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	policy := service.NewTierPolicy(&cfg.Tiers)
	userSvc := service.NewUserService(store)
	signatureSvc := service.NewSignatureService(&cfg.Signature)

	renderer := service.NewRenderer(store, minioSvc, &cfg.Render)
	generator := service.NewGenerator(store, policy, renderer, minioSvc, signatureSvc)

	if err := seed(store, userSvc); err != nil {
		slog.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg, userSvc)
	documentHandler := handler.NewDocumentHandler(userSvc, generator)
	templateHandler := handler.NewTemplateHandler(store, policy)
	callbackHandler := handler.NewCallbackHandler(signatureSvc, generator, store)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())     // Request ID for tracing
	router.Use(middleware.Recovery())      // Panic recovery
	router.Use(middleware.RequestLogger()) // Access logging
	router.Use(corsMiddleware())           // CORS

	// One limiter shared by both route groups: public traffic is keyed
	// by client IP, protected traffic by the authenticated user.
	rateLimit := middleware.RateLimit(100, time.Minute)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")

	// Public routes
	public := api.Group("/")
	public.Use(rateLimit)
	{
		public.POST("/auth/register", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)
		public.GET("/plans", templateHandler.Plans)
		public.POST("/signature/callback", callbackHandler.HandleCallback)
	}

	// Protected routes (rate limited per user, after authentication)
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth), rateLimit)
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.PATCH("/auth/me", authHandler.UpdateProfile)

		protected.GET("/templates", templateHandler.List)
		protected.GET("/templates/:id", templateHandler.Get)

		protected.POST("/documents/generate", documentHandler.Generate)
		protected.GET("/documents", documentHandler.List)
		protected.GET("/documents/:id", documentHandler.Get)
		protected.GET("/documents/:id/status", documentHandler.GetStatus)
		protected.PATCH("/documents/:id", documentHandler.Update)
		protected.DELETE("/documents/:id", documentHandler.Delete)
		protected.GET("/documents/:id/download", documentHandler.Download)
		protected.POST("/documents/:id/signature", documentHandler.RequestSignature)
		protected.GET("/documents/:id/signers", documentHandler.GetSigners)

		protected.GET("/usage/quota", documentHandler.Quota)
	}

	// Admin routes
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/templates", templateHandler.Create)
		admin.PUT("/templates/:id", templateHandler.Update)
		admin.DELETE("/templates/:id", templateHandler.Deactivate)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Drain in-flight renders after the listener closes.
	renderer.Stop()

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
