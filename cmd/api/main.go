//	@title			CloudShare API
//	@version		1.0
//	@description	File storage backend with per-account quotas, sharing, and visibility controls.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/cloudshare/service/internal/account"
	"github.com/cloudshare/service/internal/auth"
	"github.com/cloudshare/service/internal/billing"
	"github.com/cloudshare/service/internal/config"
	"github.com/cloudshare/service/internal/db"
	"github.com/cloudshare/service/internal/file"
	appMiddleware "github.com/cloudshare/service/internal/middleware"
	"github.com/cloudshare/service/internal/mail"
	"github.com/cloudshare/service/internal/payment"
	"github.com/cloudshare/service/internal/quota"
	"github.com/cloudshare/service/internal/response"
	"github.com/cloudshare/service/internal/share"
	"github.com/cloudshare/service/internal/storage"

	_ "github.com/cloudshare/service/docs/swagger"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store, err := storage.NewMinioStorage(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StoragePublicBase,
		cfg.StorageUseSSL,
	)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}

	var mailer mail.Mailer = mail.LogMailer{}
	if cfg.IsProduction() && cfg.SMTPHost != "" {
		mailer = &mail.SMTPMailer{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort,
			User: cfg.SMTPUser, Pass: cfg.SMTPPass,
			From: cfg.MailFrom,
		}
	}

	gateway := payment.NewRazorpayGateway(cfg.PaymentKeyID, cfg.PaymentKeySecret, cfg.PaymentWebhookSecret)

	// Wire dependencies: repository → service → handler
	accountRepo := account.NewRepository(pool)
	fileRepo := file.NewRepository(pool)
	quotaRepo := quota.NewRepository(pool)
	shareRepo := share.NewRepository(pool)

	quotaSvc := quota.NewService(quotaRepo, cfg.FreeTierFileLimit)
	shareSvc := share.NewService(shareRepo, accountRepo)
	fileSvc := file.NewService(fileRepo, quotaSvc, shareSvc, accountRepo, store,
		cfg.MaxFileSizeBytes, cfg.PlanFileLimit)
	accountSvc := account.NewService(accountRepo, fileRepo, store)
	authSvc := auth.NewService(accountRepo, mailer, cfg)
	billingSvc := billing.NewService(gateway, quotaSvc, cfg.PlanFileLimit, cfg.PlanPriceINR)

	authHandler := auth.NewHandler(authSvc)
	accountHandler := account.NewHandler(accountSvc)
	fileHandler := file.NewHandler(fileSvc)
	billingHandler := billing.NewHandler(billingSvc)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Route("/auth", authHandler.Routes)

		// Signature-authenticated provider webhook
		r.Post("/webhooks/payment", billingHandler.Webhook)

		// Bearer-protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))
			r.Route("/users", accountHandler.Routes)
			r.Route("/files", fileHandler.Routes)
			r.Route("/billing", billingHandler.Routes)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		log.Printf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
