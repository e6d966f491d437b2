package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	bookingkafka "ms-booking/internal/booking/kafka"
	rediscache "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func main() {
	log := logger.NewLogger("booking-service")
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier := tokenVerifier(ctx, cfg.Auth, log)

	bunDB := openDatabase(ctx, cfg, log)
	defer bunDB.Close()
	store := bookingdb.New(bunDB)

	var (
		statsCache booking.StatsCache
		publisher  booking.EventPublisher
		cachePing  pinger
	)

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, stats will be computed on every request: %v", cfg.Redis.Addr, err))
		} else {
			log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
		}
		cache := rediscache.NewStatsCache(redisClient, cfg.Redis.StatsTTL, log)
		statsCache = cache
		cachePing = cache
	} else {
		log.Info("REDIS", "REDIS_ADDR not set, stats cache disabled")
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.BookingCreated,
			cfg.Kafka.Topics.BookingCancelled,
			cfg.Kafka.Topics.EventCreated,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = bookingkafka.NewBookingPublisher(producer, bookingkafka.Topics{
			BookingCreated:   cfg.Kafka.Topics.BookingCreated,
			BookingCancelled: cfg.Kafka.Topics.BookingCancelled,
		})

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.EventCreated, cfg.Kafka.GroupID, log)
		consumer.Permanent = func(err error) bool { return errors.Is(err, booking.ErrInvalidRequest) }
		defer consumer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer and consumer initialized for brokers %v", cfg.Kafka.Brokers))
	} else {
		log.Info("KAFKA", "KAFKA_ENABLED=false, booking events will not be published")
	}

	bookingService := booking.NewService(store, statsCache, publisher, log, booking.Options{
		MaxAttempts:          cfg.Booking.MaxAttempts,
		RetryInitialInterval: cfg.Booking.RetryInitialInterval,
		AttemptTimeout:       cfg.Booking.AttemptTimeout,
	})
	queryService := booking.NewQueryService(store, statsCache, log, cfg.Booking.QueryPageSize)
	catalog := booking.NewCatalogHandler(store, log)

	if consumer != nil {
		go func() {
			if err := consumer.Start(ctx, catalog.HandleEventCreated); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Event catalogue consumer stopped: %v", err))
			}
		}()
	}

	handler := booking_api.NewHandler(bookingService, queryService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/healthz", healthHandler(bunDB, cachePing))

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		log.Info("AUTH", "Token middleware applied to protected API routes")

		r.Route("/api", handler.RegisterRoutes)
		log.Info("ROUTER", "Booking routes registered under /api")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}

// openDatabase connects and brings the schema up to date. Postgres uses the
// SQL migrations; SQLite gets the bun-created schema.
func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *bun.DB {
	bunDB, err := bookingdb.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	if !cfg.Database.AutoMigrate {
		log.Info("MIGRATION", "AUTO_MIGRATE=false, skipping schema setup")
		return bunDB
	}

	if cfg.Database.Driver != "postgres" {
		if err := bookingdb.CreateSchema(ctx, bunDB); err != nil {
			log.Fatal("MIGRATION", err.Error())
		}
		log.LogDatabase("MIGRATE", "events, bookings", "SQLite schema ready")
		return bunDB
	}

	// The migrate driver closes the handle it is given, so it gets its own.
	migrationDB, err := bookingdb.OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	runner := migrations.NewRunner(migrationDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Database.MigrationsDir,
		AutoMigrate:   true,
	}, log)
	if err := runner.Up(); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	if err := runner.Close(); err != nil {
		log.Warn("MIGRATION", err.Error())
	}
	return bunDB
}

// tokenVerifier prefers the OIDC provider. A shared HS256 secret is only
// meant for local runs.
func tokenVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.TokenVerifier {
	if cfg.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", err.Error())
		}
		log.Info("AUTH", fmt.Sprintf("Verifying tokens against OIDC issuer %s", cfg.OIDCIssuer))
		return verifier
	}
	if cfg.JWTSecret != "" {
		log.Warn("AUTH", "OIDC_ISSUER not set, accepting HS256 tokens signed with JWT_SECRET")
		return auth.HMACVerifier{Secret: []byte(cfg.JWTSecret)}
	}
	log.Fatal("CONFIG", "neither OIDC_ISSUER nor JWT_SECRET is set")
	return nil
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(bunDB *bun.DB, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok"}
		healthy := true
		if err := bunDB.PingContext(ctx); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
		if cache != nil {
			status["redis"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				// The cache is optional; report it without failing the check.
				status["redis"] = err.Error()
			}
		}

		if !healthy {
			_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.APIResponse{
				Success:   false,
				Message:   "unhealthy",
				Data:      status,
				Timestamp: time.Now().UTC(),
			})
			return
		}
		_ = utils.WriteSuccess(w, http.StatusOK, "healthy", status)
	}
}
