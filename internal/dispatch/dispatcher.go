// Package dispatch hands validated jobs to the broker's work topic.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/retry"
)

// Config tunes a Dispatcher.
type Config struct {
	// Topic is the work topic.
	Topic string
	// Attempts is the number of publish tries per job.
	Attempts int
	// Delay is the fixed pause between tries.
	Delay time.Duration
}

// DefaultConfig publishes to "trademark-workers" with three tries one second apart.
func DefaultConfig() Config {
	return Config{
		Topic:    "trademark-workers",
		Attempts: 3,
		Delay:    time.Second,
	}
}

// Dispatcher publishes jobs with its own bounded retry, on top of whatever the
// broker connection does. It keeps no record of jobs it failed to publish.
type Dispatcher struct {
	publisher domain.Publisher
	cfg       Config
}

// New returns a Dispatcher. Zero fields of cfg fall back to DefaultConfig.
func New(publisher domain.Publisher, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Delay < 0 {
		cfg.Delay = def.Delay
	}
	return &Dispatcher{publisher: publisher, cfg: cfg}
}

// Dispatch publishes job to the work topic and returns the processing acknowledgement.
// The call blocks for the whole retry window; cancelling ctx cuts it short.
// When every attempt fails the error wraps domain.ErrDispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, job domain.Job) (domain.Ack, error) {
	env := job.Envelope()
	log := slog.With("ownerKey", job.OwnerKey, "name", job.Name, "topic", d.cfg.Topic)

	policy := retry.Policy{Attempts: d.cfg.Attempts, Delay: d.cfg.Delay}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return d.publisher.Publish(ctx, d.cfg.Topic, env)
	}, func(attempt int, err error) {
		log.Warn("Failed to publish job", "attempt", attempt, "max", d.cfg.Attempts, "error", err)
	})
	if err != nil {
		log.Error("Job dispatch failed", "attempts", d.cfg.Attempts, "error", err)
		return domain.Ack{}, fmt.Errorf("%w: %q: %w", domain.ErrDispatch, job.Name, err)
	}

	log.Info("Trademark check initiated")
	return domain.Ack{
		Message:        fmt.Sprintf("Trademark check for '%s' initiated", job.Name),
		Status:         domain.StatusProcessing,
		ImageReference: job.ImageReference,
	}, nil
}
