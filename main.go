package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/booking/db"
	bookingkafka "ms-booking/internal/booking/kafka"
	rediswrap "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notification"
	"ms-booking/internal/payment"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const connectAttempts = 5

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	attempt := 0
	ping := func() error {
		attempt++
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", attempt, connectAttempts))
		if err := sqldb.PingContext(ctx); err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectAttempts-1), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", attempt, err))
	}
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
	return bunDB, redisClient
}

func runMigrations(bunDB *bun.DB, cfg config.DatabaseConfig, logger *logger.Logger) {
	if !cfg.AutoMigrate {
		logger.Info("DATABASE", "DB_AUTO_MIGRATE=false, skipping migrations")
		return
	}
	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.MigrationsDir,
		AutoMigrate:   cfg.AutoMigrate,
		SeedData:      cfg.SeedData,
	}, logger)
	if err := runner.RunMigrations(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
}

func newGateway(cfg config.PaymentConfig, logger *logger.Logger) (booking.PaymentGateway, error) {
	switch cfg.Provider {
	case payment.ProviderStripe:
		return payment.NewStripeCheckout(cfg.StripeSecretKey, cfg.Currency, logger)
	case payment.ProviderRemote:
		return payment.NewRemoteSession(cfg.RemoteSessionURL, cfg.RemoteAPIKey, cfg.Timeout, logger)
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

func newNotifier(cfg config.EmailConfig, logger *logger.Logger) booking.Notifier {
	qr, err := notification.NewQRGenerator(cfg.QRSecret)
	if err != nil {
		logger.Warn("EMAIL", fmt.Sprintf("QR codes disabled: %v", err))
		qr = nil
	}
	renderer := notification.NewRenderer(qr)

	if !cfg.Enabled() {
		logger.Warn("EMAIL", "SMTP_HOST not set, confirmations will only be logged")
		return notification.NewLogNotifier(renderer, logger)
	}
	smtp, err := notification.NewSMTPNotifier(cfg, renderer, logger)
	if err != nil {
		logger.Error("EMAIL", fmt.Sprintf("SMTP client setup failed, confirmations will only be logged: %v", err))
		return notification.NewLogNotifier(renderer, logger)
	}
	return smtp
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	runMigrations(bunDB, cfg.Database, logger)

	var publisher booking.KafkaPublisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()
		publisher = bookingkafka.NewPublisher(producer, cfg.Kafka.Topics, logger)
		logger.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		logger.Warn("KAFKA", "KAFKA_ENABLED=false, booking events will not be published")
	}

	gateway, err := newGateway(cfg.Payment, logger)
	if err != nil {
		logger.Error("PAYMENT", fmt.Sprintf("Payment gateway unavailable, online payment disabled: %v", err))
		gateway = nil
	} else {
		logger.Info("PAYMENT", fmt.Sprintf("Payment gateway %s ready", gateway.Name()))
	}

	holds := rediswrap.NewRedis(redisClient, logger)
	service := booking.NewBookingService(
		&db.DB{Bun: bunDB, Log: logger},
		holds,
		publisher,
		newNotifier(cfg.Email, logger),
		gateway,
		booking.Options{
			Booking:      cfg.Booking,
			PublicURL:    cfg.Server.PublicURL,
			Currency:     cfg.Payment.Currency,
			ReturnSecret: cfg.Payment.ReturnSecret,
		},
		logger,
	)

	if err := holds.EnableExpiryEvents(ctx); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications, relying on the sweeper: %v", err))
	}
	holds.SubscribeHoldExpiry(ctx, func(ctx context.Context, bookingID string) {
		if err := service.ExpireReservation(ctx, bookingID); err != nil {
			logger.Error("EXPIRY", fmt.Sprintf("Failed to expire reservation %s: %v", bookingID, err))
		}
	})

	reaper, err := booking.NewReaper(service, cfg.Booking.SweepInterval, logger)
	if err != nil {
		logger.Fatal("REAPER", fmt.Sprintf("Failed to create reservation sweeper: %v", err))
	}
	reaper.Start()

	var webhooks booking_api.WebhookParser
	if cfg.Payment.StripeWebhookSecret != "" {
		webhooks = payment.NewWebhookVerifier(cfg.Payment.StripeWebhookSecret)
	} else {
		logger.Warn("PAYMENT", "STRIPE_WEBHOOK_SECRET not set, /api/stripe/webhook is disabled")
	}
	handler := booking_api.NewHandler(service, webhooks, logger)

	var admin func(http.Handler) http.Handler
	verify, err := auth.NewVerifier(ctx, cfg.Auth)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		logger.Warn("AUTH", "No JWT_SECRET or OIDC_ISSUER, booking management routes are closed")
		admin = func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "booking management is not configured", http.StatusServiceUnavailable)
			})
		}
	case err != nil:
		logger.Fatal("AUTH", fmt.Sprintf("Failed to set up token verification: %v", err))
	default:
		admin = auth.Middleware(verify, logger)
		logger.Info("AUTH", "JWT middleware applied to booking management routes")
	}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(booking_api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(r, admin)
	logger.Info("ROUTER", "Event, payment and booking routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	if err := reaper.Stop(); err != nil {
		logger.Error("REAPER", fmt.Sprintf("Sweeper shutdown failed: %v", err))
	}
	stopBackground()
	logger.Info("HTTP", "✅ Booking Service shutdown complete")
}
