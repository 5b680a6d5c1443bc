package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vendordesk/internal/config"
	"vendordesk/internal/mqhandler"
	"vendordesk/internal/notifier"
	"vendordesk/internal/repository"
	"vendordesk/internal/service"
	pkgconfig "vendordesk/pkg/config"
	"vendordesk/pkg/db"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/mq"
	redisclient "vendordesk/pkg/redis"
	"vendordesk/pkg/util"
)

type binding struct {
	queue      string
	routingKey string
	handler    mq.MessageHandler
}

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	log.Info("Starting vendordesk worker",
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("max_retries", cfg.Worker.MaxRetries),
	)

	ctx := context.Background()

	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// dead letters go out through the publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retries := util.NewRetryCounter(rdb, cfg.Worker.RetryTTL)
	guard := mqhandler.NewGuard(retries, publisher, cfg.Worker.MaxRetries, log)

	emailRepo := repository.NewEmailRepository(dbConn, log)
	sessionRepo := repository.NewSessionRepository(dbConn, log)
	vendorRepo := repository.NewVendorRepository(dbConn, log)
	sender := notifier.NewSender(cfg.Mailgun, log)

	txRunner := repository.NewTxRunner(dbConn)

	ingest := service.NewIngestService(emailRepo, sessionRepo, vendorRepo, txRunner, deduper, log)
	vendorAssigned := mqhandler.NewVendorAssignedHandler(sessionRepo, vendorRepo, sender, deduper, log)
	replyRequested := mqhandler.NewReplyRequestedHandler(sender, deduper, log)

	bindings := []binding{
		{queue: "email.received.ingest.q", routingKey: mq.RoutingKeyEmailReceived, handler: ingest.HandleEmailReceived},
		{queue: "session.vendor_assigned.notify.q", routingKey: mq.RoutingKeyVendorAssigned, handler: vendorAssigned.HandleVendorAssigned},
		{queue: "email.reply_requested.send.q", routingKey: mq.RoutingKeyReplyRequested, handler: replyRequested.HandleReplyRequested},
	}

	consumers := make([]*mq.Consumer, 0, len(bindings))
	for _, b := range bindings {
		log.Info("Initializing MQ consumer",
			zap.String("queue", b.queue),
			zap.String("routing_key", b.routingKey),
		)
		consumer, err := mq.NewConsumer(cfg.MQ.URL, b.queue, b.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", b.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(guard.Wrap(b.routingKey, b.handler))

		go func(queue string) {
			if err := consumer.StartConsuming(); err != nil {
				log.Fatal("Consumer failed", zap.String("queue", queue), zap.Error(err))
			}
		}(b.queue)
		consumers = append(consumers, consumer)
	}

	metricsAddr := pkgconfig.GetEnv("WORKER_METRICS_ADDR", ":9091")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	log.Info("All consumers started, worker is ready to process messages",
		zap.Int("consumers", len(consumers)),
		zap.String("metrics_addr", metricsAddr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker gracefully...")
	for _, c := range consumers {
		c.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown error", zap.Error(err))
	}

	log.Info("worker shutdown complete")
}
