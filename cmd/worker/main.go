package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provisioner/internal/account"
	"provisioner/internal/identity"
	"provisioner/internal/platform/config"
	"provisioner/internal/platform/database"
	"provisioner/internal/platform/health"
	"provisioner/internal/platform/kafka/consumer"
	"provisioner/internal/platform/kafka/producer"
	"provisioner/internal/platform/logger"
	"provisioner/internal/platform/metrics"
	"provisioner/internal/provision"
	"provisioner/migrations"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main wires high-level dependencies and keeps the worker lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing provisioning worker",
		"brokers", cfg.Kafka.BootstrapServers,
		"topic", cfg.Kafka.Topic,
		"group_id", cfg.Kafka.GroupID,
	)

	m := metrics.New()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var store account.Store
	if pool != nil {
		if err := database.Migrate(cfg.DatabaseURL, migrations.FS); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		store = account.NewPostgres(pool.DB())
	} else {
		log.Warn("DATABASE_URL not set, using in-memory account store")
		store = account.NewInMemory()
	}

	resolver, err := identity.New(cfg.AuthServer)
	if err != nil {
		log.Error("invalid identity service configuration", "error", err)
		os.Exit(1)
	}

	var dlq provision.DeadLetterer = provision.NoopDeadLetter{}
	var dlqProducer *producer.Producer
	if cfg.Kafka.DLQTopic != "" {
		dlqProducer, err = producer.New(producer.Config{
			Brokers:         cfg.Kafka.BootstrapServers,
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			log.Error("failed to create dead-letter producer", "error", err)
			os.Exit(1)
		}
		dlq = provision.NewDeadLetter(dlqProducer, cfg.Kafka.DLQTopic, m, log)
	}

	handler := provision.NewHandler(resolver, store, dlq, m, log)

	cons, err := consumer.New(consumer.Config{
		Brokers:            cfg.Kafka.BootstrapServers,
		GroupID:            cfg.Kafka.GroupID,
		AutoOffsetReset:    "earliest",
		AutoCommitInterval: cfg.Kafka.AutoCommitInterval,
	}, handler, log)
	if err != nil {
		log.Error("failed to create kafka consumer", "error", err)
		os.Exit(1)
	}

	// Subscription open failure is fatal; there is no reconnect loop.
	if err := cons.Subscribe([]string{cfg.Kafka.Topic}); err != nil {
		log.Error("failed to subscribe", "topic", cfg.Kafka.Topic, "error", err)
		os.Exit(1)
	}
	cons.Start()
	log.Info("kafka consumer started", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)

	healthHandler := health.New("provisioner", cfg.Environment)
	healthHandler.RegisterCheck("kafka", func() error {
		if !cons.Healthy() {
			return errors.New("no active partition assignment")
		}
		return nil
	})
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}

	router := chi.NewRouter()
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.OpsAddr, Handler: router}
	go func() {
		log.Info("starting ops server", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ops server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := cons.Stop(ctx); err != nil {
		log.Error("consumer shutdown failed", "error", err)
	}
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("dead-letter producer close failed", "error", err)
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("ops server shutdown failed", "error", err)
	}
	if err := pool.Close(); err != nil {
		log.Error("database close failed", "error", err)
	}

	log.Info("worker stopped")
}
