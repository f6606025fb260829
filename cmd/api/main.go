package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/carebridge/backend/internal/audit"
	"github.com/carebridge/backend/internal/auth"
	"github.com/carebridge/backend/internal/config"
	"github.com/carebridge/backend/internal/dashboard"
	"github.com/carebridge/backend/internal/database"
	"github.com/carebridge/backend/internal/expiry"
	"github.com/carebridge/backend/internal/messaging"
	"github.com/carebridge/backend/internal/repository"
	"github.com/carebridge/backend/internal/reputation"
	"github.com/carebridge/backend/internal/services"
	"github.com/carebridge/backend/internal/verification"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DB.URL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. make dev-up", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Cannot reach redis", "error", err)
		os.Exit(1)
	}

	// River migrations (job queue tables only; app schema migrates separately)
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	db := database.NewPoolRunner(pool)

	walletRepo := repository.NewWalletRepo(pool)
	postRepo := repository.NewJobPostRepo(pool)
	instanceRepo := repository.NewJobInstanceRepo(pool)
	disputeRepo := repository.NewDisputeRepo(pool)
	eventRepo := repository.NewEventRepo(pool)
	userRepo := repository.NewUserRepo(pool)

	auditor := audit.NewPGRecorder(pool, logger)
	poster := messaging.NewTimelinePoster(pool, logger)

	validator, err := services.NewDetailsValidator(cfg.SchemaDir)
	if err != nil {
		slog.Warn("Detail schema validation disabled", "error", err)
	}

	settlement := services.NewSettlementEngine(walletRepo)
	lifecycle := services.NewLifecycleService(db, postRepo, instanceRepo, userRepo, eventRepo,
		settlement, validator, auditor, poster, logger)
	disputes := services.NewDisputeService(db, disputeRepo, instanceRepo, postRepo, walletRepo,
		eventRepo, auditor, logger)

	repSvc := reputation.NewService(userRepo, logger)
	otpStore := verification.NewOTPStore(rdb, repSvc,
		time.Duration(cfg.Redis.OTPTTLMinutes)*time.Minute, logger)

	authSvc := auth.NewService(db, userRepo, walletRepo, cfg.Auth.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)
	overview := dashboard.NewHandler(postRepo, disputeRepo, walletRepo, logger)

	// Expiry sweep: a periodic river job scans for posted jobs whose start
	// time passed without an acceptance.
	workers := river.NewWorkers()
	river.AddWorker(workers, expiry.NewSweepWorker(postRepo, lifecycle, logger))

	sweepInterval := time.Duration(cfg.ExpirySweepMinutes) * time.Minute
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(sweepInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return expiry.SweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, routeDeps{
		authSvc:     authSvc,
		authHandler: authHandler,
		lifecycle:   lifecycle,
		disputes:    disputes,
		posts:       postRepo,
		events:      eventRepo,
		wallets:     walletRepo,
		otp:         otpStore,
		overview:    overview,
		logger:      logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.HTTP.Addr)
	if err := http.ListenAndServe(cfg.HTTP.Addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
