package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/greenfelt/club-engine/config"
	"github.com/greenfelt/club-engine/db"
	"github.com/greenfelt/club-engine/handlers"
	"github.com/greenfelt/club-engine/realtime"
	"github.com/greenfelt/club-engine/repositories"
	api "github.com/greenfelt/club-engine/routes"
	"github.com/greenfelt/club-engine/services"
	"github.com/greenfelt/club-engine/storage"
	"github.com/greenfelt/club-engine/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Object storage is optional: without it avatars and result archives
	// are simply disabled.
	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize object storage", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("object storage initialized", slog.String("bucket", cfg.R2BucketName))
	}

	wsHub := realtime.NewHub(logger)
	go wsHub.Run()

	fanoutCtx, cancelFanout := context.WithCancel(context.Background())
	defer cancelFanout()

	// With Redis configured, broadcasts fan out to every instance; without
	// it the local hub is the whole world.
	var broadcast realtime.Broadcaster = wsHub
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		fanout := realtime.NewRedisFanout(wsHub, redisClient, logger)
		go fanout.Run(fanoutCtx)
		broadcast = fanout
		logger.Info("redis event fanout enabled", slog.String("addr", cfg.RedisAddr))
	}

	userRepo := repositories.NewPostgresUserRepository(dbConn)
	clubRepo := repositories.NewPostgresClubRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	tableRepo := repositories.NewPostgresTableRepository(dbConn)
	seatRepo := repositories.NewPostgresSeatRepository(dbConn)
	handRepo := repositories.NewPostgresHandRepository(dbConn)
	txRunner := repositories.NewTxRunner(dbConn)

	var archiver services.ResultsArchiver
	if uploader != nil {
		archiver = services.NewObjectStoreArchiver(uploader)
	}

	authService := services.NewAuthService(userRepo)
	tableService := services.NewTableService(txRunner, tableRepo, seatRepo, registrationRepo, broadcast, logger)
	tournamentService := services.NewTournamentService(
		txRunner,
		tournamentRepo,
		registrationRepo,
		tableRepo,
		clubRepo,
		tableService,
		archiver,
		uploader,
		broadcast,
		logger,
	)
	paymentService := services.NewPaymentService(txRunner, registrationRepo, tournamentRepo, cfg.PaymentWebhookSecret, logger)

	var processor services.ActionProcessor
	if cfg.ActionProcessorURL != "" {
		processor = services.NewHTTPActionProcessor(cfg.ActionProcessorURL)
	}
	sweepService := services.NewSweepService(handRepo, seatRepo, tableService, processor, logger)
	logger.Info("services initialized")

	// The sweep runs on asynq when Redis is available, so only one
	// instance fires per interval; otherwise a local ticker does the job.
	var sweepWorker *workers.SweepWorker
	if processor == nil {
		logger.Warn("ACTION_PROCESSOR_URL not set, timeout sweep disabled")
	} else if cfg.RedisAddr != "" {
		sweepWorker = workers.NewSweepWorker(cfg.RedisAddr, sweepService, int(cfg.SweepInterval.Seconds()), logger)
		go func() {
			if err := sweepWorker.Run(); err != nil {
				logger.Error("sweep worker stopped", slog.Any("error", err))
			}
		}()
	} else {
		go func() {
			ticker := time.NewTicker(cfg.SweepInterval)
			defer ticker.Stop()
			logger.Info("in-process sweep scheduler started", slog.Duration("interval", cfg.SweepInterval))
			for range ticker.C {
				if _, err := sweepService.SweepTimeouts(context.Background()); err != nil {
					logger.Error("scheduled sweep failed", slog.Any("error", err))
				}
			}
		}()
	}

	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	tableHandler := handlers.NewTableHandler(tableService)
	webhookHandler := handlers.NewWebhookHandler(paymentService)
	sweepHandler := handlers.NewSweepHandler(sweepService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		authHandler,
		tournamentHandler,
		tableHandler,
		webhookHandler,
		sweepHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		if sweepWorker != nil {
			sweepWorker.Shutdown()
		}
		cancelFanout()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
	}
	logger.Info("application exited")
}
