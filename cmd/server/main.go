package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pagegate-org/pagegate/internal/cache"
	"github.com/pagegate-org/pagegate/internal/config"
	"github.com/pagegate-org/pagegate/internal/database"
	"github.com/pagegate-org/pagegate/internal/domains"
	"github.com/pagegate-org/pagegate/internal/gate"
	"github.com/pagegate-org/pagegate/internal/handlers"
	"github.com/pagegate-org/pagegate/internal/ratelimit"
	"github.com/pagegate-org/pagegate/internal/relay"
	"github.com/pagegate-org/pagegate/internal/resources"
	"github.com/pagegate-org/pagegate/internal/rewrite"
	"github.com/pagegate-org/pagegate/internal/storage"
	"github.com/pagegate-org/pagegate/internal/store"
	"github.com/pagegate-org/pagegate/internal/token"
	"github.com/pagegate-org/pagegate/internal/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := logrus.New()

	db, err := database.NewPostgresDB(logger, database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		DBName:   cfg.PostgresDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("Database setup failed")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Invalid REDIS_URL")
	}
	kv := cache.NewRedisCache(redis.NewClient(redisOpts))

	gormStore := store.NewGormStore(db)
	assetStorage := storage.NewS3Storage(logger, cfg, db)
	fetcher := upstream.NewClient(logger, cfg.UpstreamTimeout)

	resourceCache := resources.NewCache(logger, kv, gormStore, cfg.MetadataTTL, cfg.CacheTimeout)
	tokens := token.NewManager(cfg.TokenSecret, cfg.TokenTTL)
	limiter := ratelimit.New(kv, cfg.MaxFailedAttempts, cfg.AttemptWindow, cfg.CacheTimeout)

	accessGate := gate.New(logger, resourceCache, gormStore, gormStore, limiter, tokens, cfg.FingerprintSalt)
	contentEngine := rewrite.NewContentEngine(logger, resourceCache, tokens, fetcher)
	scriptEngine := rewrite.NewScriptEngine(logger, kv, fetcher, rewrite.LiteralStrategy{}, cfg.ScriptTTL, cfg.CacheTimeout)
	assetRelay := relay.New(logger, assetStorage, fetcher, cfg.UpstreamOrigin, cfg.AssetPrefixes, cfg.AssetTTL)
	resolver := domains.NewResolver(logger, gormStore, gormStore, cfg.CanonicalHosts)

	handler := handlers.NewGatewayHandler(logger, cfg, accessGate, contentEngine, scriptEngine, assetRelay)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, handler)

	// The resolver rewrites the request target, so it must run before mux
	// matches a route; it wraps the router instead of joining r.Use.
	root := resolver.Middleware(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go storage.NewPurger(logger, db, assetStorage).Start(ctx)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.WithField("addr", server.Addr).Info("Starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}
