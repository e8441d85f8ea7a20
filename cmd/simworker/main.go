// Command simworker is a development stand-in for the trademark analysis
// service. It consumes the work topic and publishes deterministic results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dontdude/markcheck/internal/config"
	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/platform/logger"
	"github.com/dontdude/markcheck/internal/platform/queue"
	"github.com/dontdude/markcheck/internal/simulate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Worker exited", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var submit struct {
		owner, name, product string
	}

	root := &cobra.Command{
		Use:   "simworker",
		Short: "Consume trademark jobs and publish simulated analysis results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, broker, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer broker.Close()
			return run(cmd.Context(), cfg, broker)
		},
		SilenceUsage: true,
	}

	publish := &cobra.Command{
		Use:   "publish",
		Short: "Publish one work envelope to the work topic, bypassing the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, broker, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer broker.Close()

			env := domain.WorkEnvelope{OwnerKey: submit.owner, Name: submit.name, ProductCategory: submit.product}
			if err := broker.Publish(cmd.Context(), cfg.Broker.WorkTopic, env); err != nil {
				return fmt.Errorf("publish job: %w", err)
			}
			slog.Info("Published job", "ownerKey", env.OwnerKey, "name", env.Name, "topic", cfg.Broker.WorkTopic)
			return nil
		},
		SilenceUsage: true,
	}
	publish.Flags().StringVar(&submit.owner, "owner", "dev-user", "owner key (uid) of the job")
	publish.Flags().StringVar(&submit.name, "name", "Acme", "trademark name")
	publish.Flags().StringVar(&submit.product, "product", "cosmetics", "product category")

	root.AddCommand(publish)
	return root
}

func connect(ctx context.Context) (config.WorkerConfig, *queue.RedisBroker, error) {
	cfg, err := config.LoadWorker()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	broker := queue.NewRedisBroker(queue.Options{
		Addr:             cfg.Redis.Addr,
		Password:         cfg.Redis.Password,
		DB:               cfg.Redis.DB,
		ConnectAttempts:  cfg.Broker.ConnectAttempts,
		ConnectInterval:  cfg.Broker.ConnectInterval,
		Group:            cfg.Group,
		Concurrency:      cfg.Broker.Concurrency,
		RecoveryInterval: cfg.Broker.RecoveryInterval,
		RecoveryMinIdle:  cfg.Broker.RecoveryMinIdle,
	})
	if err := broker.Connect(ctx); err != nil {
		_ = broker.Close()
		return cfg, nil, fmt.Errorf("connect broker: %w", err)
	}
	return cfg, broker, nil
}

func run(ctx context.Context, cfg config.WorkerConfig, broker *queue.RedisBroker) error {
	w := simulate.NewWorker(broker, cfg.Broker.ResultTopic, simulate.DefaultCatalog())

	sub, err := broker.Subscribe(ctx, cfg.Broker.WorkTopic, w.Handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", cfg.Broker.WorkTopic, err)
	}
	slog.Info("Starting simulated analysis worker", "workTopic", cfg.Broker.WorkTopic, "resultTopic", cfg.Broker.ResultTopic)

	sub.Wait()
	slog.Info("Worker stopped")
	return nil
}
