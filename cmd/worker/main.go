package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventix/eventix/config"
	"github.com/eventix/eventix/internal/cache"
	"github.com/eventix/eventix/internal/email"
	"github.com/eventix/eventix/internal/gateway"
	"github.com/eventix/eventix/internal/issuer"
	"github.com/eventix/eventix/internal/kafka"
	"github.com/eventix/eventix/internal/repository"
	"github.com/eventix/eventix/internal/service/checkout"
	"github.com/eventix/eventix/monitoring"
	"github.com/eventix/eventix/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer lg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		lg.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Checkout.EventsCacheTTL)*time.Second)

	eventRepo := repository.NewEventRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	sessionRepo := repository.NewPaymentSessionRepository(pool)

	checkoutService := checkout.NewCheckoutService(
		eventRepo,
		ticketRepo,
		sessionRepo,
		gateway.NewHTTPClient(cfg.Gateway),
		issuer.New(cfg.Checkout.CredentialSecret),
		redisCache,
		producer,
		lg,
		decimal.NewFromFloat(cfg.Checkout.ServiceFeeRate),
		cfg.Gateway.Currency,
		cfg.Gateway.CallbackURL,
		time.Duration(cfg.Checkout.SessionMaxAgeMinutes)*time.Minute,
		cfg.Kafka.TicketEventsTopic,
		checkout.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		checkout.WithMonitor(monitoring.NewMonitor()),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.Consume(ctx, emailSender.Send); err != nil {
			lg.Warn("consumer stopped", "error", err)
		}
	}()

	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.ReconcileSweepMinutes) * time.Minute)
	defer sweepTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			expired, err := checkoutService.ReleaseStaleSessions(ctx)
			if err != nil {
				lg.Error("release stale sessions", "error", err)
				continue
			}
			if len(expired) > 0 {
				lg.Info("expired stale payment sessions", "count", len(expired))
			}
		case s := <-sig:
			lg.Info("shutting down", "signal", s.String())
			return
		}
	}
}
