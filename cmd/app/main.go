package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventix/eventix/config"
	"github.com/eventix/eventix/internal/bootstrap"
	"github.com/eventix/eventix/internal/cache"
	"github.com/eventix/eventix/internal/gateway"
	"github.com/eventix/eventix/internal/issuer"
	"github.com/eventix/eventix/internal/kafka"
	"github.com/eventix/eventix/internal/repository"
	"github.com/eventix/eventix/internal/service/checkout"
	"github.com/eventix/eventix/internal/service/events"
	"github.com/eventix/eventix/internal/service/tickets"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		lg.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Checkout.EventsCacheTTL)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	monitor := monitoring.NewMonitor()

	eventRepo := repository.NewEventRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	sessionRepo := repository.NewPaymentSessionRepository(pool)

	gatewayClient := gateway.NewHTTPClient(cfg.Gateway)
	credentialIssuer := issuer.New(cfg.Checkout.CredentialSecret)

	eventService := events.NewEventService(eventRepo, redisCache)
	ticketService := tickets.NewTicketService(ticketRepo, eventRepo, credentialIssuer, monitor, lg)
	checkoutService := checkout.NewCheckoutService(
		eventRepo,
		ticketRepo,
		sessionRepo,
		gatewayClient,
		credentialIssuer,
		redisCache,
		producer,
		lg,
		decimal.NewFromFloat(cfg.Checkout.ServiceFeeRate),
		cfg.Gateway.Currency,
		cfg.Gateway.CallbackURL,
		time.Duration(cfg.Checkout.SessionMaxAgeMinutes)*time.Minute,
		cfg.Kafka.TicketEventsTopic,
		checkout.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		checkout.WithMonitor(monitor),
	)

	if err := bootstrap.Run(ctx, cfg, eventService, ticketService, checkoutService); err != nil {
		lg.Fatal("server error", "error", err)
	}
}
