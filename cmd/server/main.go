package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"charter/internal/cert"
	certhandler "charter/internal/cert/handler"
	certmetrics "charter/internal/cert/metrics"
	"charter/internal/cert/pki"
	certstore "charter/internal/cert/store"
	"charter/internal/cert/store/revocation"
	"charter/internal/events"
	httpapi "charter/internal/http"
	"charter/internal/platform/config"
	"charter/internal/platform/httpserver"
	"charter/internal/platform/logger"
	"charter/internal/platform/metrics"
	"charter/internal/platform/postgres"
	platformredis "charter/internal/platform/redis"
	"charter/internal/virt"
	virthandler "charter/internal/virt/handler"
	virtmetrics "charter/internal/virt/metrics"
	virtstore "charter/internal/virt/store"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal services.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()
	ctx := context.Background()

	var db *sql.DB
	if cfg.PostgresURL != "" {
		var err error
		db, err = postgres.Open(cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("postgres connected")
	} else {
		log.Warn("no postgres configured, using in-memory stores")
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		log.Info("redis connected")
	}

	authority, err := pki.NewAuthority(cfg.CA.CommonName, cfg.CA.KeyBits, cfg.CA.Validity)
	if err != nil {
		return err
	}

	var sink events.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sink = kafka
		log.Info("kafka producer connected", "topic", cfg.KafkaTopic)
	}
	publisher := events.NewPublisher(sink)

	var (
		consumers virtstore.Store
		keyPairs  certstore.KeyPairStore
		serials   certstore.SerialStore
		certs     certstore.CertificateStore
		ledger    revocation.Ledger
	)
	if db != nil {
		consumers = virtstore.NewPostgres(db)
		keyPairs = certstore.NewPostgresKeyPairStore(db)
		serials = certstore.NewPostgresSerialStore(db)
		certs = certstore.NewPostgresCertificateStore(db)
		ledger = revocation.NewPostgres(db)
	} else {
		consumers = virtstore.NewMemory()
		keyPairs = certstore.NewMemoryKeyPairStore()
		serials = certstore.NewMemorySerialStore()
		certs = certstore.NewMemoryCertificateStore()
		ledger = revocation.NewMemory()
	}
	// A shared Redis ledger trumps per-instance storage so every instance
	// sees the same revocation state.
	if rdb != nil {
		ledger = revocation.NewRedis(rdb.Client)
	}

	resolver, err := virt.New(consumers, log, virtmetrics.New())
	if err != nil {
		return err
	}
	issuer, err := cert.New(cert.Config{
		KeyPairs:  keyPairs,
		Serials:   serials,
		Certs:     certs,
		Ledger:    ledger,
		Authority: authority,
		Publisher: publisher,
		Logger:    log,
		Metrics:   certmetrics.New(),
		KeyBits:   cfg.CA.KeyBits,
	})
	if err != nil {
		return err
	}

	var checks []httpapi.HealthCheck
	if db != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: db.PingContext})
	}
	if rdb != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: rdb.Health})
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:  log,
		Metrics: metrics.New(),
		Handlers: []httpapi.Registrar{
			virthandler.New(resolver, log),
			certhandler.New(issuer, log),
		},
		Checks: checks,
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
