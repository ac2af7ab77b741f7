package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nexuscards/battle/internal/api"
	"github.com/nexuscards/battle/internal/auth"
	"github.com/nexuscards/battle/internal/cards"
	"github.com/nexuscards/battle/internal/config"
	"github.com/nexuscards/battle/internal/database"
	"github.com/nexuscards/battle/internal/engine"
	"github.com/nexuscards/battle/internal/identity"
	"github.com/nexuscards/battle/internal/jobs"
	"github.com/nexuscards/battle/internal/logger"
	"github.com/nexuscards/battle/internal/match"
	"github.com/nexuscards/battle/internal/migrations"
	"github.com/nexuscards/battle/internal/queue"
	"github.com/nexuscards/battle/internal/redis"
	"github.com/nexuscards/battle/internal/ws"
	"github.com/rs/zerolog/log"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Setup(cfg.Environment)
	if envErr != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		log.Info().Msg("Running DB migrations on startup")
		if err := migrations.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	rdb, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	catalog, err := cards.Load(cfg.CardCatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CardCatalogPath).Msg("Failed to load card catalog")
	}

	// Rating lookups and reports are skipped when no identity service is
	// configured; matches still run, unrated on the identity side.
	var (
		eloSource ws.EloSource
		reporter  *match.EloReporter
	)
	if cfg.IdentityServiceURL != "" {
		identityClient := identity.NewClient(cfg.IdentityServiceURL, cfg.IdentityServiceToken, rdb, cfg.EloCacheTTL)
		eloSource = identityClient
		reporter = match.NewEloReporter(identityClient, cfg.EloReportAttempts, time.Second, nil)
		log.Info().Str("url", cfg.IdentityServiceURL).Msg("[IDENTITY] Client initialized")
	} else {
		log.Warn().Msg("[IDENTITY] IDENTITY_SERVICE_URL not set, ratings will not be reported")
	}

	snapshots := match.NewRedisSnapshots(rdb, cfg.MatchSnapshotTTL)
	history := match.NewPostgresHistory(db)

	hub := ws.NewHub(ws.OptionsFromConfig(cfg))
	deps := match.Deps{
		Engine:    engine.New(catalog, engine.DefaultRules()),
		Decks:     catalog,
		Notifier:  hub,
		Snapshots: snapshots,
		History:   history,
		Settings:  match.SettingsFromConfig(cfg),
	}
	if reporter != nil {
		deps.Results = reporter
	}
	registry := match.NewRegistry(deps)
	q := queue.NewManager(queue.SettingsFromConfig(cfg), registry, hub, nil)
	hub.Attach(q, registry, eloSource)

	scheduler, err := jobs.NewScheduler(q, registry, jobs.Settings{
		SweepInterval:  cfg.QueueSweepInterval,
		ReapInterval:   cfg.MatchReapInterval,
		MatchRetention: time.Duration(cfg.MatchRetentionMinutes) * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router, api.Deps{
		Hub:       hub,
		Registry:  registry,
		Queue:     q,
		Snapshots: snapshots,
		History:   history,
		Auth: ws.Authenticator{
			Tokens:  auth.NewTokens(cfg.JWTSecret),
			Devices: auth.NewDevices(auth.NewPostgresDevices(db)),
		},
	}, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Info().Str("port", port).Msg("Starting Nexus battle server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	if err := scheduler.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("Scheduler shutdown failed")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	hub.CloseAll()
	registry.Shutdown()
	if reporter != nil {
		reporter.Wait()
	}
}
