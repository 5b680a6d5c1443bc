package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vendordesk/internal/config"
	"vendordesk/internal/handler"
	"vendordesk/internal/httpserver"
	"vendordesk/internal/repository"
	"vendordesk/internal/service"
	"vendordesk/migrations"
	"vendordesk/pkg/db"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/mq"
	"vendordesk/pkg/outbox"
	redisclient "vendordesk/pkg/redis"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	log.Info("Starting vendordesk api",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, dbConn, migrations.FS, log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	emailRepo := repository.NewEmailRepository(dbConn, log)
	sessionRepo := repository.NewSessionRepository(dbConn, log)
	vendorRepo := repository.NewVendorRepository(dbConn, log)
	outboxRepo := outbox.NewRepository(dbConn)
	events := repository.NewEventWriter(outboxRepo)
	txRunner := repository.NewTxRunner(dbConn)

	// Outbox
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Worker.OutboxInterval).
		WithBatchSize(cfg.Worker.OutboxBatchSize).
		WithMaxRetries(cfg.Worker.MaxRetries)
	go dispatcher.Start(ctx)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	replyService := service.NewReplyService(emailRepo, txRunner, events, cfg.ReplyDomain, log)
	assignmentService := service.NewAssignmentService(sessionRepo, vendorRepo, txRunner, events, log)
	statsCache := redisclient.NewJSONCache(rdb, "stats:")
	statsService := service.NewStatsService(emailRepo, sessionRepo, vendorRepo, statsCache, cfg.StatsCacheTTL, log)

	router := httpserver.NewRouter(httpserver.Handlers{
		Emails:   handler.NewEmailHandler(emailRepo, replyService, log),
		Threads:  handler.NewThreadHandler(emailRepo, replyService, log),
		Sessions: handler.NewSessionHandler(sessionRepo, assignmentService, log),
		Vendors:  handler.NewVendorHandler(vendorRepo, statsService, log),
		Stats:    handler.NewStatsHandler(statsService, log),
		Admin:    handler.NewAdminHandler(replayService, log),
	}, httpserver.Options{
		CORSOrigins: cfg.CORSOrigins,
		ReadyChecks: map[string]httpserver.ReadyCheck{
			"db": dbConn.Ping,
			"mq": func(context.Context) error {
				if !publisher.IsConnected() {
					return mq.ErrNotConnected
				}
				return nil
			},
		},
	}, log)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down api gracefully...")

	// stop the dispatcher before the publisher closes
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("api shutdown complete")
}
