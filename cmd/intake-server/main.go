package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clearpath/intake/internal/config"
	"github.com/clearpath/intake/internal/domain/admin"
	"github.com/clearpath/intake/internal/domain/documents"
	"github.com/clearpath/intake/internal/domain/forms"
	"github.com/clearpath/intake/internal/domain/lookup"
	"github.com/clearpath/intake/internal/domain/patient"
	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
	"github.com/clearpath/intake/internal/platform/auth"
	"github.com/clearpath/intake/internal/platform/blobstore"
	"github.com/clearpath/intake/internal/platform/db"
	"github.com/clearpath/intake/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Urgent care patient intake API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Lookup throttling counts live in Redis when configured, otherwise in
	// Postgres. Both enforce the same windowed-attempt semantics.
	var rateStore lookup.RateLimitStore = lookup.NewRateLimitPG(pool)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		rateStore = lookup.NewRateLimitRedis(client)
		logger.Info().Msg("lookup throttling backed by redis")
	}

	blobs, err := blobstore.NewFilesystemStore(cfg.DocumentDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open document storage")
	}

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	lookupWindow := time.Duration(cfg.LookupWindowMinutes) * time.Minute

	// Services
	visitSvc := visit.NewService(visit.NewRepoPG(pool))
	sessionSvc := session.NewService(session.NewStorePG(pool), session.NewResolverPG(pool))

	patientRepo := patient.NewRepoPG(pool)
	patientSvc := patient.NewService(patientRepo, visitSvc, sessionSvc, sessionTTL, logger)

	limiter := lookup.NewLimiter(rateStore, cfg.LookupMaxAttempts, lookupWindow, logger)
	lookupSvc := lookup.NewService(limiter, patientRepo, lookup.NewAuditPG(pool),
		visitSvc, sessionSvc, sessionTTL, logger)

	formsSvc := forms.NewService(forms.NewRepoPG(pool), patientRepo, visitSvc, sessionSvc, logger)
	documentsSvc := documents.NewService(documents.NewRepoPG(pool), blobs, sessionSvc,
		cfg.DocumentMaxBytes, logger)

	adminSvc := admin.NewService(admin.NewRepoPG(pool), []byte(cfg.JWTSecret),
		time.Duration(cfg.JWTTTLMinutes)*time.Minute, logger)

	// Expired intake sessions are swept in the background.
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				n, err := sessionSvc.Cleanup(cleanupCtx)
				if err != nil {
					logger.Error().Err(err).Msg("session cleanup failed")
				} else if n > 0 {
					logger.Info().Int64("removed", n).Msg("cleaned up expired sessions")
				}
			}
		}
	}()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "12M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Intake-Session"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Patient-facing surface: no staff auth, session-gated where needed.
	intake := e.Group("/intake")
	intake.Use(middleware.RateLimit(rateLimitCfg))

	// Staff surface behind JWT auth.
	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitCfg))
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("running with development auth, all requests are admin")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
	}

	// Handlers
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterPublicRoutes(intake)
	patientHandler.RegisterRoutes(api)

	lookupHandler := lookup.NewHandler(lookupSvc)
	lookupHandler.RegisterPublicRoutes(intake)
	lookupHandler.RegisterRoutes(api)

	formsHandler := forms.NewHandler(formsSvc)
	formsHandler.RegisterPublicRoutes(intake)
	formsHandler.RegisterRoutes(api)

	documentsHandler := documents.NewHandler(documentsSvc)
	documentsHandler.RegisterPublicRoutes(intake)
	documentsHandler.RegisterRoutes(api)

	visitHandler := visit.NewHandler(visitSvc)
	visitHandler.RegisterRoutes(api)

	// Login sits outside the JWT gate but still behind the rate limiter.
	authGroup := e.Group("/api/v1")
	authGroup.Use(middleware.RateLimit(rateLimitCfg))

	adminHandler := admin.NewHandler(adminSvc)
	adminHandler.RegisterPublicRoutes(authGroup)
	adminHandler.RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
