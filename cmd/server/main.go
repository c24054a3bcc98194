package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anonto42/nano-pulse/backend/internal/changefeed"
	"github.com/anonto42/nano-pulse/backend/internal/middleware"
	"github.com/anonto42/nano-pulse/backend/internal/repositories"
	"github.com/anonto42/nano-pulse/backend/internal/repositories/inmemory"
	"github.com/anonto42/nano-pulse/backend/internal/router"
	"github.com/anonto42/nano-pulse/backend/pkg/config"
	"github.com/anonto42/nano-pulse/backend/pkg/firebase"
	"github.com/anonto42/nano-pulse/backend/pkg/logger"
	"github.com/anonto42/nano-pulse/backend/pkg/metrics"
	"github.com/anonto42/nano-pulse/backend/validators"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	broker := changefeed.NewBroker(log)

	// Initialize database connections
	db, err := config.InitDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.CloseDB() // Ensure database connections are closed when run returns

	store, err := openStore(ctx, cfg, db, broker, log)
	if err != nil {
		return err
	}
	store = repositories.WithReadRetry(store, repositories.RetryConfig{
		Attempts: cfg.ReadRetryAttempts,
		Delay:    repositories.DefaultRetryConfig.Delay,
		MaxDelay: repositories.DefaultRetryConfig.MaxDelay,
	}, log)

	// Mongo instances each watch the change stream, so only the in-process
	// publishers need the relay.
	if cfg.RedisAddr != "" && cfg.StoreDriver != config.DriverMongo {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		if err := changefeed.NewRedisRelay(client, broker, cfg.RedisChannel, log).Start(ctx); err != nil {
			return err
		}
	}

	deps := router.NewDependencies(store, broker, log)
	deps.ToggleLimiter = middleware.NewActorRateLimiter(rate.Limit(cfg.ToggleRatePerSecond), cfg.ToggleBurst)
	if cfg.JWTSecret != "" {
		deps.JWT = middleware.NewJWTVerifier(cfg.JWTSecret)
	}
	if cfg.FirebaseCredentialsPath != "" {
		// Initialize Firebase
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, log)
		if err != nil {
			return err
		}
		deps.Firebase = middleware.NewFirebaseVerifier(firebaseApp.AuthClient)
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e, log)
	router.SetupRoutes(e, deps)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown failed", zap.Error(err))
	}
	return nil
}

// openStore returns the store for the configured driver. Memory and
// Postgres stores publish their own writes; the Mongo store's changes come
// back through the change stream.
func openStore(ctx context.Context, cfg *config.Config, db *config.DB, broker *changefeed.Broker, log *zap.Logger) (repositories.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg := repositories.NewPostgresStore(db.Postgres)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info("PostgreSQL migrations completed")
		return repositories.WithPublishing(pg, broker), nil

	case config.DriverMongo:
		mdb := db.Mongo.Database(cfg.MongoDatabase)
		ms := repositories.NewMongoStore(mdb)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		if err := ms.EnablePreImages(ctx); err != nil {
			log.Warn("pre-images unavailable; open notification lists will miss deletes", zap.Error(err))
		}
		stream := repositories.NewMongoChangeStream(mdb, broker, log)
		go func() {
			if err := stream.Run(ctx); err != nil {
				log.Error("change stream stopped", zap.Error(err))
			}
		}()
		return ms, nil
	}

	log.Warn("using the in-memory store; data is lost on restart")
	return repositories.WithPublishing(inmemory.New(), broker), nil
}
