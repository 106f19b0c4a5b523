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

	"github.com/claimops/claimops/internal/config"
	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/domain/drift"
	"github.com/claimops/claimops/internal/domain/reports"
	"github.com/claimops/claimops/internal/domain/rules"
	"github.com/claimops/claimops/internal/domain/scoring"
	"github.com/claimops/claimops/internal/platform/auth"
	"github.com/claimops/claimops/internal/platform/db"
	"github.com/claimops/claimops/internal/platform/middleware"
	"github.com/claimops/claimops/internal/platform/telemetry"
	"github.com/claimops/claimops/internal/platform/webhook"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "claims-server",
		Short: "Claims automation API server",
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
		Short: "Start the claims API server",
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

// webhookPublisher fans domain events out to registered webhook
// endpoints. It satisfies the drift and reports publisher hooks.
type webhookPublisher struct {
	manager *webhook.Manager
}

func (p *webhookPublisher) DriftDetected(ctx context.Context, event *drift.DriftEvent) {
	p.manager.Publish(ctx, webhook.EventDriftDetected, event)
}

func (p *webhookPublisher) ReportReady(ctx context.Context, run *reports.ReportRun) {
	p.manager.Publish(ctx, webhook.EventReportReady, run)
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

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tel := telemetry.NewProvider("claims-server", version)

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
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health and metrics stay outside the authenticated group.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tel.PrometheusHandler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Middleware(auth.Config{Secret: cfg.JWTSecret}))

	// -- Claims domain --
	customerRepo := claims.NewCustomerRepoPG(pool)
	payerRepo := claims.NewPayerRepoPG(pool)
	claimRepo := claims.NewClaimRepoPG(pool)
	claimsSvc := claims.NewService(customerRepo, payerRepo, claimRepo)
	claimsHandler := claims.NewHandler(claimsSvc, claims.CustomerDefaults{
		DriftThreshold:     cfg.DriftThreshold,
		MinVolume:          cfg.DriftMinVolume,
		BaselineWindowDays: cfg.BaselineWindowDays,
		CurrentWindowDays:  cfg.CurrentWindowDays,
	})
	claimsHandler.RegisterRoutes(apiV1)

	// -- Scoring domain --
	scoreEngine, err := scoring.NewEngine(scoring.Weights{
		Coding:        cfg.WeightCoding,
		Eligibility:   cfg.WeightEligibility,
		Necessity:     cfg.WeightNecessity,
		Documentation: cfg.WeightDocumentation,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scoring weights")
	}
	scoreRepo := scoring.NewScoreRepoPG(pool)
	featureSource := scoring.NewFeatureSourcePG(pool)
	scoringSvc := scoring.NewService(claimRepo, scoreRepo, featureSource,
		scoreEngine, scoring.NewRouter(scoring.DefaultThresholds()), tel, logger)
	scoringHandler := scoring.NewHandler(scoringSvc)
	scoringHandler.RegisterRoutes(apiV1)

	// -- Webhook delivery --
	webhookMgr := webhook.NewManager(webhook.NewInMemoryStore())
	webhookHandler := webhook.NewHandler(webhookMgr)
	webhookHandler.RegisterRoutes(apiV1)
	publisher := &webhookPublisher{manager: webhookMgr}

	// -- Rules domain --
	ruleRepo := rules.NewRuleRepoPG(pool)
	executionLogRepo := rules.NewExecutionLogRepoPG(pool)
	ruleEngine := rules.NewEngine(executionLogRepo, tel, cfg.ActionTimeout, logger)
	registerActionHandlers(ruleEngine, webhookMgr, logger)
	rulesSvc := rules.NewService(ruleRepo, executionLogRepo, ruleEngine, logger)
	rulesHandler := rules.NewHandler(rulesSvc, claimsSvc)
	rulesHandler.RegisterRoutes(apiV1)

	// Lifecycle hooks: the rules service reacts to claim and scoring
	// events. Wired after construction to keep the dependency one-way.
	claimsSvc.SetNotifier(rulesSvc)
	scoringSvc.SetSink(rulesSvc)

	// -- Drift domain --
	eventStore := drift.NewEventStorePG(pool, cfg.DriftLockTimeout)
	detector := drift.NewDetector(drift.NewMetricSourcePG(pool), eventStore, tel, logger)
	detector.SetPublisher(publisher)
	driftHandler := drift.NewHandler(detector, claimsSvc)
	driftHandler.RegisterRoutes(apiV1)

	// -- Reports domain --
	runRepo := reports.NewRunRepoPG(pool)
	reportsSvc := reports.NewService(runRepo, detector, tel, cfg.ReportArtifactDir, logger)
	reportsSvc.SetPublisher(publisher)
	reportsHandler := reports.NewHandler(reportsSvc, claimsSvc)
	reportsHandler.RegisterRoutes(apiV1)

	scheduler := reports.NewScheduler(reportsSvc, claimsSvc, logger)
	if err := scheduler.Start(cfg.ReportCronSpec); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.ReportCronSpec).Msg("invalid report cron spec")
	}

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
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// registerActionHandlers binds the engine's action types to their
// collaborators. auto_submit and escalate are integration points for
// the clearinghouse gateway; until that lands they record intent, which
// the work queue and execution log surface to operators.
func registerActionHandlers(engine *rules.Engine, webhookMgr *webhook.Manager, logger zerolog.Logger) {
	engine.RegisterHandler(rules.ActionAutoSubmit, rules.ActionHandlerFunc(
		func(ctx context.Context, event rules.Event, rule *rules.AutomationRule) error {
			logger.Info().
				Str("rule", rule.Name).
				Str("claim_id", event.Claim.ID.String()).
				Msg("claim released for automatic submission")
			return nil
		}))

	engine.RegisterHandler(rules.ActionNotify, rules.ActionHandlerFunc(
		func(ctx context.Context, event rules.Event, rule *rules.AutomationRule) error {
			payload := map[string]interface{}{
				"rule":  rule.Name,
				"event": string(event.Type),
			}
			if event.Claim != nil {
				payload["claim_id"] = event.Claim.ID
			}
			if event.Score != nil {
				payload["tier"] = event.Score.AutomationTier
			}
			webhookMgr.Publish(ctx, webhook.EventAutomationNotify, payload)
			return nil
		}))

	engine.RegisterHandler(rules.ActionEscalate, rules.ActionHandlerFunc(
		func(ctx context.Context, event rules.Event, rule *rules.AutomationRule) error {
			logger.Warn().
				Str("rule", rule.Name).
				Str("claim_id", event.Claim.ID.String()).
				Msg("claim escalated for manual review")
			return nil
		}))

	engine.RegisterHandler(rules.ActionNoOp, rules.ActionHandlerFunc(
		func(ctx context.Context, event rules.Event, rule *rules.AutomationRule) error {
			return nil
		}))
}
