package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dontdude/markcheck/internal/api"
	"github.com/dontdude/markcheck/internal/config"
	"github.com/dontdude/markcheck/internal/correlator"
	"github.com/dontdude/markcheck/internal/dispatch"
	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/platform/auth"
	"github.com/dontdude/markcheck/internal/platform/memstore"
	"github.com/dontdude/markcheck/internal/platform/objectstore"
	"github.com/dontdude/markcheck/internal/platform/postgres"
	"github.com/dontdude/markcheck/internal/platform/queue"
	"github.com/dontdude/markcheck/internal/platform/web"
	"github.com/dontdude/markcheck/internal/subscription"
	"github.com/dontdude/markcheck/internal/trademark"
)

// stores bundles the durable store implementations selected by STORE_BACKEND.
type stores struct {
	results domain.ResultStore
	users   domain.UserStore
	ping    func(ctx context.Context) error
	close   func()
}

func serve(ctx context.Context, cfg config.Config) error {
	// 1. Broker: unreachable after every attempt is fatal.
	broker := queue.NewRedisBroker(queue.Options{
		Addr:             cfg.Redis.Addr,
		Password:         cfg.Redis.Password,
		DB:               cfg.Redis.DB,
		ConnectAttempts:  cfg.Broker.ConnectAttempts,
		ConnectInterval:  cfg.Broker.ConnectInterval,
		Group:            cfg.Broker.ConsumerGroup,
		Concurrency:      cfg.Broker.Concurrency,
		RecoveryInterval: cfg.Broker.RecoveryInterval,
		RecoveryMinIdle:  cfg.Broker.RecoveryMinIdle,
	})
	defer broker.Close()
	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	// 2. Stores
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// 3. Identity and object storage
	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	objects, err := objectstore.New(objectstore.Config{
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		KeyPrefix:     cfg.Storage.KeyPrefix,
	})
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		// The bucket may be provisioned out of band with narrower credentials.
		slog.Warn("Could not ensure image bucket", "bucket", cfg.Storage.Bucket, "error", err)
	}

	// 4. Core components
	registry := subscription.NewRegistry(0)
	dispatcher := dispatch.New(broker, dispatch.Config{
		Topic:    cfg.Broker.WorkTopic,
		Attempts: cfg.Dispatch.Attempts,
		Delay:    cfg.Dispatch.Delay,
	})
	svc := trademark.NewService(objects, dispatcher, st.results, st.users, registry)
	corr := correlator.New(st.results, registry)

	g, gctx := errgroup.WithContext(ctx)

	// 5. Result consumer
	sub, err := broker.Subscribe(gctx, cfg.Broker.ResultTopic, corr.Handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", cfg.Broker.ResultTopic, err)
	}
	g.Go(func() error {
		sub.Wait()
		return nil
	})

	if cfg.Registry.PruneInterval > 0 {
		g.Go(func() error {
			registry.RunJanitor(gctx, cfg.Registry.PruneInterval)
			return nil
		})
	}

	// 6. HTTP
	var limiter *web.RateLimiter
	if cfg.Limits.RPS > 0 {
		limiter = web.NewRateLimiter(cfg.Limits.RPS, cfg.Limits.Burst, api.RateLimitKey)
		g.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
	}
	srv := api.NewServer(svc, verifier, limiter, api.Health{
		BrokerState: broker.State,
		StorePing:   st.ping,
	}, api.Config{
		AllowedOrigin:  cfg.HTTP.AllowedOrigin,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		SSEKeepAlive:   cfg.HTTP.SSEKeepAlive,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("API Server starting", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		slog.Warn("Using in-memory store; results are lost on restart")
		return stores{
			results: memstore.NewResultStore(),
			users:   memstore.NewUserStore(),
			close:   func() {},
		}, nil
	}

	pool, err := postgres.Connect(ctx, postgresConfig(cfg.Postgres))
	if err != nil {
		return stores{}, err
	}
	if cfg.Postgres.RunMigrations {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return stores{}, err
		}
	}
	return stores{
		results: postgres.NewResultStore(pool),
		users:   postgres.NewUserStore(pool),
		ping:    pool.Ping,
		close:   pool.Close,
	}, nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (domain.TokenVerifier, error) {
	if cfg.Mode == config.AuthModeMock {
		tokens, err := auth.ParseStaticTokens(cfg.DevTokens)
		if err != nil {
			return nil, err
		}
		slog.Warn("AUTH_MODE=mock: accepting static development tokens", "count", len(tokens))
		return auth.NewStaticVerifier(tokens), nil
	}
	return auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
		Issuer:   cfg.OIDCIssuer,
		ClientID: cfg.OIDCClientID,
	})
}
