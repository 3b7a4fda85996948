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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"piivault/internal/audit"
	audithandler "piivault/internal/audit/handler"
	outboxmetrics "piivault/internal/audit/outbox/metrics"
	outboxworker "piivault/internal/audit/outbox/worker"
	consenthandler "piivault/internal/consent/handler"
	consentservice "piivault/internal/consent/service"
	"piivault/internal/crypto"
	gdprhandler "piivault/internal/gdpr/handler"
	gdprservice "piivault/internal/gdpr/service"
	gdprstore "piivault/internal/gdpr/store"
	gdprworker "piivault/internal/gdpr/worker"
	jwttoken "piivault/internal/jwt_token"
	"piivault/internal/pii"
	"piivault/internal/platform/config"
	"piivault/internal/platform/health"
	"piivault/internal/platform/kafka/producer"
	"piivault/internal/platform/logger"
	"piivault/internal/platform/metrics"
	"piivault/internal/platform/redis"
	"piivault/internal/platform/tracer"
	userhandler "piivault/internal/users/handler"
	userservice "piivault/internal/users/service"
	"piivault/pkg/platform/tx"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine, err := newCryptoEngine(cfg.Crypto)
	if err != nil {
		return err
	}
	codec := pii.NewCodec(engine, pii.WithLogger(log), pii.WithMetrics(m))

	be, err := newBackend(ctx, cfg, log, tx.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer be.Close() //nolint:errcheck // shutdown path

	rc, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		return err
	}

	healthHandler := health.New(cfg.Env, be.name)
	if be.pool != nil {
		healthHandler.RegisterCheck("database", be.pool.Health)
	}

	trail := audit.NewTrail(be.events, audit.WithLogger(log), audit.WithMetrics(m))
	users := userservice.New(be.users, codec, trail, be.tx,
		userservice.WithLogger(log), userservice.WithMetrics(m))
	consents := consentservice.New(be.consents, trail, be.users, be.tx,
		consentservice.WithLogger(log), consentservice.WithMetrics(m))

	var exports gdprservice.ExportCache = gdprstore.NewInMemoryCache()
	if rc != nil {
		defer rc.Close() //nolint:errcheck // shutdown path
		exports = gdprstore.NewRedisCache(rc.Client)
		healthHandler.RegisterCheck("redis", rc.Health)
	}
	lifecycle := gdprservice.New(be.users, codec, consents, trail, be.tx,
		gdprservice.WithLogger(log),
		gdprservice.WithMetrics(m),
		gdprservice.WithTracer(tracer.NewOTel()),
		gdprservice.WithPolicy(gdprservice.Policy{
			MinRetentionDays: cfg.Retention.PurgeMinRetentionDays,
			AuditRetention:   cfg.Retention.AuditRetention,
			ClaimTTL:         cfg.Retention.DeletionClaimTTL,
			ExportTTL:        cfg.Retention.ExportTTL,
			BatchSize:        cfg.Retention.PurgeBatchSize,
			Concurrency:      cfg.Retention.PurgeConcurrency,
		}),
		gdprservice.WithExportCache(engine, exports),
	)

	workerOpts := []gdprworker.Option{
		gdprworker.WithInterval(cfg.Retention.PurgeInterval),
		gdprworker.WithLogger(log),
	}
	if rc != nil {
		workerOpts = append(workerOpts,
			gdprworker.WithLocker(gdprworker.RedisLocker(rc.Client, gdprworker.DefaultLockKey, cfg.Retention.PurgeInterval)))
	}
	purger, err := gdprworker.New(lifecycle, cfg.Retention.UserRetentionDays, workerOpts...)
	if err != nil {
		return err
	}

	publisher, err := startOutbox(cfg, log, be, reg, healthHandler)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	router, err := newRouter(cfg, log, m, reg, jwttoken.NewJWTServiceAdapter(jwtService), healthHandler, []routes{
		userhandler.New(users, log),
		consenthandler.New(consents, log),
		audithandler.New(trail, log),
		gdprhandler.New(lifecycle, log),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	log.Info("initializing piivault",
		"addr", cfg.Server.Addr,
		"env", cfg.Env,
		"backend", be.name,
		"redis", rc != nil,
		"kafka", cfg.Kafka.Brokers != "",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := purger.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if rc != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					rc.RecordPoolStats()
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
		}
		if publisher != nil {
			if err := publisher.stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func newCryptoEngine(cfg config.CryptoConfig) (*crypto.Engine, error) {
	decoded, err := cfg.DecodedKeys()
	if err != nil {
		return nil, err
	}
	keys := make([]crypto.KeyMaterial, 0, len(decoded))
	for _, k := range decoded {
		keys = append(keys, crypto.KeyMaterial{Version: k.Version, Secret: k.Secret})
	}
	hmacSecret, err := cfg.DecodedHMACSecret()
	if err != nil {
		return nil, err
	}
	ring, err := crypto.NewKeyring(cfg.ActiveKeyVersion, keys, hmacSecret)
	if err != nil {
		return nil, err
	}
	return crypto.NewEngine(ring), nil
}

type eventProducer interface {
	outboxworker.Publisher
	Close() error
}

// outboxPublisher relays committed audit events to Kafka.
type outboxPublisher struct {
	worker   *outboxworker.Worker
	producer eventProducer
}

func (p *outboxPublisher) stop(ctx context.Context) error {
	err := p.worker.Stop(ctx)
	return errors.Join(err, p.producer.Close())
}

// startOutbox runs the relay for the postgres backend. Without brokers the
// outbox is drained through a no-op producer. The in-memory backend has no
// outbox.
func startOutbox(cfg *config.Config, log *slog.Logger, be *backend, reg prometheus.Registerer, h *health.Handler) (*outboxPublisher, error) {
	if be.outbox == nil {
		return nil, nil
	}
	var prod eventProducer
	if cfg.Kafka.Brokers == "" {
		log.Warn("KAFKA_BROKERS not set, audit outbox drained without publishing")
		prod = producer.NewNoopProducer()
	} else {
		kp, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			ClientID:        "piivault",
			Acks:            "all",
			Retries:         5,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			return nil, err
		}
		h.RegisterCheck("kafka", func(ctx context.Context) error {
			if !kp.Healthy(ctx) {
				return errors.New("kafka brokers unreachable")
			}
			return nil
		})
		prod = kp
	}

	w := outboxworker.New(be.outbox, prod,
		outboxworker.WithTopic(cfg.Kafka.AuditTopic),
		outboxworker.WithBatchSize(cfg.Kafka.BatchSize),
		outboxworker.WithPollInterval(cfg.Kafka.PollInterval),
		outboxworker.WithMetrics(outboxmetrics.New(reg)),
		outboxworker.WithLogger(log),
	)
	w.Start()
	return &outboxPublisher{worker: w, producer: prod}, nil
}
