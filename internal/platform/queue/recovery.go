package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/dontdude/markcheck/internal/worker"
	"github.com/redis/go-redis/v9"
)

// StartRecoveryRoutine polls the PEL for stale entries of topic and re-runs them.
// An entry is stale when it was delivered but not acknowledged for longer than
// RecoveryMinIdle, e.g. because the process died mid-handler. It blocks until ctx ends.
func (r *RedisBroker) StartRecoveryRoutine(ctx context.Context, topic string, pool *worker.Pool) {
	ticker := time.NewTicker(r.opts.RecoveryInterval)
	defer ticker.Stop()

	slog.Info("Starting Redis recovery routine", "topic", topic, "interval", r.opts.RecoveryInterval, "minIdle", r.opts.RecoveryMinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.reclaim(ctx, topic, pool) {
				return
			}
		}
	}
}

// reclaim walks the PEL once. It returns false when ctx ended mid-walk.
func (r *RedisBroker) reclaim(ctx context.Context, topic string, pool *worker.Pool) bool {
	start := "-" // Start from beginning of stream
	for {
		// XAUTOCLAIM transfers ownership of idle entries to this consumer.
		messages, nextStart, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   topic,
			Group:    r.opts.Group,
			MinIdle:  r.opts.RecoveryMinIdle,
			Start:    start,
			Count:    10,
			Consumer: r.opts.Consumer,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			slog.Error("Recovery routine failed", "topic", topic, "error", err)
			return true
		}

		if len(messages) > 0 {
			slog.Warn("Recovered stale messages", "topic", topic, "count", len(messages))
		}
		for _, msg := range messages {
			slog.Warn("Redelivering stale message", "topic", topic, "msgID", msg.ID)
			if !r.submit(ctx, topic, msg, pool) {
				return false
			}
		}

		start = nextStart
		if start == "0-0" || len(messages) == 0 {
			return true
		}
	}
}
