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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/whispers/whispers/internal/config"
	"github.com/whispers/whispers/internal/domain/comment"
	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/domain/identity"
	"github.com/whispers/whispers/internal/domain/notification"
	"github.com/whispers/whispers/internal/domain/search"
	"github.com/whispers/whispers/internal/domain/servicerequest"
	"github.com/whispers/whispers/internal/domain/superevent"
	"github.com/whispers/whispers/internal/platform/auth"
	"github.com/whispers/whispers/internal/platform/db"
	"github.com/whispers/whispers/internal/platform/middleware"
	"github.com/whispers/whispers/internal/platform/telemetry"
)

const serviceName = "whispers-server"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "WHISPers wildlife health event API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(notifyCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, db.Migrations()))
}

// notifyCmd runs one daily notification job immediately.
func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run a daily notification job now",
	}
	jobs := map[string]string{
		"standard": notification.TaskStandard,
		"custom":   notification.TaskCustom,
		"stale":    notification.TaskStale,
	}
	for _, name := range []string{"standard", "custom", "stale"} {
		task := jobs[name]
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Run the " + name + " notification job",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				logger := newLogger(cfg.Env)
				ctx := cmd.Context()
				a, err := newApp(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer a.Close()

				n, err := notification.NewJobs(a.rules, a.cache, logger).Run(ctx, task)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d notification(s) generated.\n", task, n)
				return nil
			},
		})
	}
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TelemetryConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTELEndpoint,
		Insecure:     true,
		Environment:  cfg.Env,
		SampleRate:   cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.Close()
	logger.Info().Msg("connected to database")

	e := newEcho(cfg, logger, a)

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
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.TracingMiddleware(serviceName))
	e.Use(telemetry.MetricsMiddleware())
	e.Use(echomw.BodyLimit("10M"))
	e.Use(middleware.RequestTimeout(30*time.Second, "/api/v1/events/export"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "If-Match"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, map[string]db.Check{"redis": a.cache.Ping}))
	e.GET("/metrics", echo.WrapHandler(telemetry.Handler()))

	api := e.Group("/api/v1")
	event.NewHandler(a.events, a.searches, logger).RegisterRoutes(api)
	identity.NewHandler(a.identity).RegisterRoutes(api)
	comment.NewHandler(a.comments).RegisterRoutes(api)
	servicerequest.NewHandler(a.serviceRequests).RegisterRoutes(api)
	superevent.NewHandler(a.superEvents).RegisterRoutes(api)
	search.NewHandler(a.searches).RegisterRoutes(api)
	notification.NewHandler(a.notifications).RegisterRoutes(api)
	return e
}
