package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/glowmart/checkout/internal/config"
	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/events"
	"github.com/glowmart/checkout/internal/logging"
	"github.com/glowmart/checkout/internal/metrics"
	"github.com/glowmart/checkout/internal/payment"
	"github.com/glowmart/checkout/internal/pricing"
	"github.com/glowmart/checkout/internal/server"
	"github.com/glowmart/checkout/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		Service: "checkout-api",
		Env:     cfg.Environment,
		Level:   cfg.Log.Level,
	})

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to database")

	authorizer := newAuthorizer(cfg)
	coordinator := store.NewCoordinator(db, authorizer, pricing.RulesFromConfig(cfg.Pricing), log, cfg.Kafka.OrderTopic)
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if pub := events.NewKafkaPublisher(cfg.Kafka.Brokers); pub != nil {
		defer pub.Close()
		relay := events.NewRelay(db, pub, log, cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatch)
		go relay.Run(ctx)
		log.Info("outbox relay started", "topic", cfg.Kafka.OrderTopic)
	} else {
		log.Info("no kafka brokers configured, outbox relay disabled")
	}

	srv := server.NewServer(db, coordinator, checkoutMetrics, log)

	address := ":" + cfg.Server.Port
	go func() {
		log.Info("http server starting", "address", address)
		if err := srv.Start(address); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error("shutdown http server", "error", err)
	}
}

// newAuthorizer picks the gateway implementation. Only the simulated gateway
// exists today; a real provider client plugs in here without touching the
// coordinator.
func newAuthorizer(cfg *config.Config) payment.Authorizer {
	return payment.NewSimulatedGateway(cfg.Payment)
}
