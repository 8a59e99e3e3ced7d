package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/woundcare/intake/internal/config"
	"github.com/woundcare/intake/internal/domain/fulfillment"
	"github.com/woundcare/intake/internal/domain/manufacturer"
	"github.com/woundcare/intake/internal/domain/session"
	"github.com/woundcare/intake/internal/platform/auth"
	"github.com/woundcare/intake/internal/platform/db"
	"github.com/woundcare/intake/internal/platform/middleware"
	"github.com/woundcare/intake/internal/platform/notify"
	"github.com/woundcare/intake/internal/platform/services"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Wound care intake API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the manufacturer catalog",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a manufacturer catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			repo, err := manufacturer.LoadCatalog(path)
			if err != nil {
				return fmt.Errorf("catalog invalid: %w", err)
			}
			configs, err := repo.List(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Catalog OK: %d manufacturer(s)\n", len(configs))
			for _, mc := range configs {
				fmt.Printf("  %-20s signature=%v upload=%v\n", mc.ID, mc.SignatureRequired, mc.SupportsInsuranceUpload)
			}
			return nil
		},
	}
	validateCmd.Flags().String("file", "manufacturers.yaml", "Path to catalog YAML")
	cmd.AddCommand(validateCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Database is optional: the manufacturer catalog and submission history can
	// run off a YAML file and process memory in single-instance deployments.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	}

	// Manufacturer catalog
	var manufacturers manufacturer.Repository
	if cfg.ManufacturerCatalog != "" {
		catalog, err := manufacturer.LoadCatalog(cfg.ManufacturerCatalog)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ManufacturerCatalog).Msg("failed to load manufacturer catalog")
		}
		manufacturers = catalog
		logger.Info().Str("path", cfg.ManufacturerCatalog).Msg("manufacturer catalog loaded")
	} else {
		manufacturers = manufacturer.NewRepoPG(pool)
	}

	// Session store: Redis when configured, otherwise in-process with TTL sweep.
	var sessionStore session.Store
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		sessionStore = session.NewRedisStore(rdb, cfg.SessionTTL)
		logger.Info().Msg("using redis session store")
	} else {
		memStore := session.NewInMemoryStore(cfg.SessionTTL)
		defer memStore.Close()
		sessionStore = memStore
		logger.Warn().Msg("REDIS_URL not set; sessions are held in process memory")
	}

	// Upstream service clients
	clientOpts := []services.Option{services.WithLogger(logger)}
	if cfg.ServiceToken != "" {
		clientOpts = append(clientOpts, services.WithToken(cfg.ServiceToken))
	}
	extractor := services.NewExtractionClient(cfg.ExtractionURL, clientOpts...)
	episodes := services.NewEpisodeClient(cfg.EpisodesURL, clientOpts...)
	mapper := services.NewMappingClient(cfg.MappingURL, clientOpts...)
	renderer := services.NewRenderClient(cfg.RenderURL, clientOpts...)
	esign := services.NewESignClient(cfg.ESignURL, clientOpts...)
	dispatcher := services.NewDispatchClient(cfg.DispatchURL, clientOpts...)

	// Submission store
	var submissions fulfillment.SubmissionStore
	if pool != nil {
		submissions = fulfillment.NewPgSubmissionStore(pool)
	} else {
		submissions = fulfillment.NewInMemorySubmissionStore()
	}

	// Status change notifier
	notifyManager := notify.NewManager(notify.NewInMemoryStore(), logger)

	router := fulfillment.NewRouter(submissions, mapper, renderer, esign, dispatcher, logger,
		fulfillment.WithNotifier(notify.NewSubmissionNotifier(notifyManager)))

	sessionSvc := session.NewService(sessionStore, episodes, extractor, manufacturers, router, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// API routes
	apiV1 := e.Group("/api/v1")

	session.NewHandler(sessionSvc).RegisterRoutes(apiV1)
	manufacturer.NewHandler(manufacturer.NewService(manufacturers)).RegisterRoutes(apiV1)
	fulfillment.NewHandler(submissions).RegisterRoutes(apiV1)
	notify.NewHandler(notifyManager).RegisterRoutes(apiV1.Group("/listeners", auth.RequireRole("admin")))

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting intake server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
