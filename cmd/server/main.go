package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/sleep-hub/sleep-hub/internal/api/http"
	"github.com/sleep-hub/sleep-hub/internal/application/classifier"
	"github.com/sleep-hub/sleep-hub/internal/application/dispatch"
	"github.com/sleep-hub/sleep-hub/internal/application/ingest"
	"github.com/sleep-hub/sleep-hub/internal/application/notify"
	"github.com/sleep-hub/sleep-hub/internal/application/score"
	"github.com/sleep-hub/sleep-hub/internal/application/sessionwatch"
	"github.com/sleep-hub/sleep-hub/internal/application/stabilizer"
	"github.com/sleep-hub/sleep-hub/internal/config"
	"github.com/sleep-hub/sleep-hub/internal/infrastructure/postgres"
	"github.com/sleep-hub/sleep-hub/internal/infrastructure/sse"
	"github.com/sleep-hub/sleep-hub/internal/policy"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("policy error: %v", err)
	}

	clf, err := classifier.FromPolicy(pol)
	if err != nil {
		log.Fatalf("classifier error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	sessionRepo := postgres.NewSessionStateRepository(pool)
	transitionRepo := postgres.NewTransitionRepository(pool)
	commandRepo := postgres.NewCommandRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)
	deviceRepo := postgres.NewDeviceRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)

	// infrastructure
	sseHub := sse.NewHub()

	// services
	stabilizerSvc := stabilizer.NewService(sessionRepo, pol.MinDwell, logger)
	dispatchSvc := dispatch.NewService(commandRepo, pol, logger)
	ingestSvc := ingest.NewService(clf, stabilizerSvc, transitionRepo, dispatchSvc, sseHub, logger)
	scoreSvc := score.NewService(transitionRepo, reportRepo, logger)
	notifySvc := notify.NewService(notificationRepo, deviceRepo, sseHub, nil, logger)
	watcherSvc := sessionwatch.NewService(sessionRepo, reportRepo, scoreSvc, notifySvc, cfg.SessionEndAfter, cfg.WatcherBatchSize, logger)

	// API server
	apiServer := httpapi.NewServer(ingestSvc, scoreSvc, sessionRepo, transitionRepo, commandRepo, reportRepo, deviceRepo, notificationRepo, sseHub)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	go notifySvc.RunWorker(ctx, cfg.NotifyInterval, cfg.NotifyBatchSize)
	go watcherSvc.Run(ctx, cfg.WatcherInterval)

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
