package app

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

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/config"
	"github.com/kirinyoku/tixledger/internal/kafka"
	"github.com/kirinyoku/tixledger/internal/metrics"
	"github.com/kirinyoku/tixledger/internal/outbox"
	"github.com/kirinyoku/tixledger/internal/postgres"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
	"github.com/kirinyoku/tixledger/internal/repository"
	"github.com/kirinyoku/tixledger/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tixledger/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tixledger/internal/repository/redis"
	"github.com/kirinyoku/tixledger/internal/scheduler"
	"github.com/kirinyoku/tixledger/internal/service"
	"github.com/kirinyoku/tixledger/internal/service/auth"
	"github.com/kirinyoku/tixledger/internal/service/ledger"
	"github.com/kirinyoku/tixledger/internal/service/registry"
	"github.com/kirinyoku/tixledger/internal/service/verification"
	"github.com/kirinyoku/tixledger/internal/ticketqr"
	httpgin "github.com/kirinyoku/tixledger/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  *scheduler.Scheduler
	closers    []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger}

	// Initialize storage
	var store repository.Store
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN(), MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store = postgresrepo.NewStore(pool)
	default:
		logger.Warn("using in-memory storage; state is lost on restart")
		store = memory.New()
	}

	clk := clock.Real()

	// Redis backed collaborators stay nil interfaces when Redis is off.
	var (
		cache     *redisrepo.Cache
		idem      httpgin.Idempotency
		limiter   ledger.RateLimiter
		publisher ledger.ChangePublisher
		feed      httpgin.Feed
		nonces    auth.NonceStore = auth.NewMemoryNonces(clk, cfg.Auth.NonceTTL)
	)
	if cfg.Redis.Enabled {
		rdb, err := redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		pubsub := redisx.NewTicketsPubSub(rdb)
		cache = redisrepo.NewCache(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Ledger.IdempotencyTTL)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "rl", cfg.Ledger.MintRateLimit, cfg.Ledger.MintRateWindow)
		publisher = pubsub
		feed = pubsub
		nonces = redisrepo.NewNonceStore(rdb, cfg.Auth.NonceTTL)
	}

	m := metrics.New()

	// Initialize services
	services := service.NewServices(service.Deps{
		Store:     store,
		Cache:     cache,
		Limiter:   limiter,
		Publisher: publisher,
		Nonces:    nonces,
		QR:        ticketqr.NewCodec(cfg.Ledger.QRSecret),
		Clock:     clk,
		Log:       logger,
		Metrics:   m,
	}, service.Config{
		Registry:     registry.Config{RejectPastStart: cfg.Ledger.RejectPastStart},
		Ledger:       ledger.Config{},
		Verification: verification.Config{},
		Auth:         auth.Config{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL},
	})

	boot, err := config.LoadBootstrap(cfg.Bootstrap)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load bootstrap: %w", err)
	}
	if err := services.Registry.Bootstrap(ctx, boot); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to bootstrap registry: %w", err)
	}

	// Outbox delivery
	var sink outbox.Publisher = outbox.LogPublisher{Log: logger}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, func() { _ = producer.Close() })
		sink = producer
	}
	sender := outbox.NewSender(logger, store, sink, clk, m, cfg.Jobs.OutboxBatch)

	a.scheduler, err = scheduler.New(logger,
		scheduler.Job{
			Name:     "outbox",
			Interval: cfg.Jobs.OutboxInterval,
			Run: func(ctx context.Context) error {
				_, err := sender.Flush(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "reconcile",
			Interval: cfg.Jobs.ReconcileInterval,
			Run: func(ctx context.Context) error {
				_, err := services.Registry.Reconcile(ctx)
				return err
			},
		},
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	// Initialize Gin router
	router := httpgin.NewRouter(services, httpgin.Options{
		Idempotency: idem,
		Feed:        feed,
		Metrics:     m,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Background jobs
	g.Go(func() error {
		return a.scheduler.Run(gCtx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close releases connections in reverse order of acquisition.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.logger.Debug("resources released")
}
