package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/retry"
	"github.com/dontdude/markcheck/internal/worker"
	"github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field holding the JSON envelope.
const payloadField = "payload"

// Options configures a RedisBroker.
type Options struct {
	Addr     string
	Password string
	DB       int

	// ConnectAttempts and ConnectInterval bound Connect.
	ConnectAttempts int
	ConnectInterval time.Duration

	// Group is the consumer group used by Subscribe.
	Group string
	// Consumer names this process inside Group. Defaults to hostname-pid.
	Consumer string
	// Concurrency is the number of handlers run at once per subscription.
	Concurrency int
	// ReadBlock is how long one XREADGROUP call waits for new entries.
	ReadBlock time.Duration

	// RecoveryInterval enables the reclaim loop when positive.
	RecoveryInterval time.Duration
	// RecoveryMinIdle is how long an entry must sit unacknowledged before it is reclaimed.
	RecoveryMinIdle time.Duration
}

func (o *Options) setDefaults() {
	if o.ConnectAttempts < 1 {
		o.ConnectAttempts = 5
	}
	if o.ConnectInterval <= 0 {
		o.ConnectInterval = 5 * time.Second
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.ReadBlock <= 0 {
		o.ReadBlock = 2 * time.Second
	}
	if o.RecoveryMinIdle <= 0 {
		o.RecoveryMinIdle = time.Minute
	}
	if o.Consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "consumer"
		}
		o.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
}

// RedisBroker implements domain.Broker on Redis Streams.
// Each topic is a stream; consumption goes through a consumer group so every
// entry is handled at least once.
type RedisBroker struct {
	client redis.UniversalClient
	opts   Options

	state     atomic.Int32
	connectMu sync.Mutex
}

// Ensure RedisBroker satisfies the interface
var _ domain.Broker = (*RedisBroker)(nil)

// NewRedisBroker returns a broker in the Disconnected state.
// No network traffic happens until Connect.
func NewRedisBroker(opts Options) *RedisBroker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisBrokerWithClient(rdb, opts)
}

// NewRedisBrokerWithClient wraps an existing client (single, sentinel or cluster).
func NewRedisBrokerWithClient(client redis.UniversalClient, opts Options) *RedisBroker {
	opts.setDefaults()
	return &RedisBroker{
		client: client,
		opts:   opts,
	}
}

// State reports the current connection state.
func (r *RedisBroker) State() domain.BrokerState {
	return domain.BrokerState(r.state.Load())
}

func (r *RedisBroker) setState(s domain.BrokerState) {
	r.state.Store(int32(s))
}

// Connect pings Redis up to ConnectAttempts times, ConnectInterval apart.
// Exhausting every attempt leaves the broker Failed and returns an error
// wrapping domain.ErrConnection; callers treat that as fatal.
func (r *RedisBroker) Connect(ctx context.Context) error {
	r.connectMu.Lock()
	defer r.connectMu.Unlock()

	if r.State() == domain.BrokerConnected {
		return nil
	}
	r.setState(domain.BrokerConnecting)
	slog.Info("Connecting to broker", "addr", r.opts.Addr, "maxAttempts", r.opts.ConnectAttempts)

	policy := retry.Policy{Attempts: r.opts.ConnectAttempts, Delay: r.opts.ConnectInterval}
	made := 0
	err := retry.Do(ctx, policy, r.ping, func(attempt int, err error) {
		made = attempt
		slog.Warn("Failed to connect to broker, retrying", "attempt", attempt, "max", r.opts.ConnectAttempts, "error", err)
	})
	if err != nil {
		r.setState(domain.BrokerFailed)
		slog.Error("Failed to connect to broker", "attempts", made, "max", r.opts.ConnectAttempts, "error", err)
		return fmt.Errorf("%w after %d attempt(s): %w", domain.ErrConnection, made, err)
	}

	r.setState(domain.BrokerConnected)
	slog.Info("Broker connection established")
	return nil
}

func (r *RedisBroker) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(pingCtx).Err()
}

// Close releases the client. The broker returns to Disconnected.
func (r *RedisBroker) Close() error {
	r.setState(domain.BrokerDisconnected)
	return r.client.Close()
}

// Publish appends v to the topic stream using XADD (Producer).
func (r *RedisBroker) Publish(ctx context.Context, topic string, v any) error {
	if r.State() != domain.BrokerConnected {
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	// "*" ID lets Redis generate a timestamp-based ID.
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{payloadField: data},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", topic, err)
	}
	return nil
}

// Subscription is a running consumer of one topic.
type Subscription struct {
	topic string
	done  chan struct{}
}

// Topic returns the consumed topic.
func (s *Subscription) Topic() string { return s.topic }

// Wait blocks until the subscription's context ended and in-flight handlers finished.
func (s *Subscription) Wait() { <-s.done }

// Done is closed once Wait would return.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Subscribe consumes topic through the broker's consumer group (XREADGROUP).
// handler runs on a fixed-size pool, concurrently for distinct entries; each
// entry is acknowledged after its handler returns. Consumption stops when ctx ends.
func (r *RedisBroker) Subscribe(ctx context.Context, topic string, handler domain.Handler) (*Subscription, error) {
	if r.State() != domain.BrokerConnected {
		return nil, domain.ErrNotConnected
	}

	// MkStream guarantees the stream exists even if empty. Starting at "0" lets a
	// new group pick up entries published before it existed.
	err := r.client.XGroupCreateMkStream(ctx, topic, r.opts.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("create consumer group %s on %s: %w", r.opts.Group, topic, err)
	}

	pool := worker.NewPool(r.opts.Concurrency, handler)
	pool.Start(ctx)

	sub := &Subscription{topic: topic, done: make(chan struct{})}

	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		r.readLoop(ctx, topic, pool)
	}()
	if r.opts.RecoveryInterval > 0 {
		loops.Add(1)
		go func() {
			defer loops.Done()
			r.StartRecoveryRoutine(ctx, topic, pool)
		}()
	}

	go func() {
		loops.Wait()
		pool.Stop()
		close(sub.done)
	}()

	slog.Info("Subscribed to topic", "topic", topic, "group", r.opts.Group, "consumer", r.opts.Consumer)
	return sub, nil
}

func (r *RedisBroker) readLoop(ctx context.Context, topic string, pool *worker.Pool) {
	for {
		if ctx.Err() != nil {
			return
		}

		// Block for a bounded time so context cancellation is noticed.
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.opts.Group,
			Consumer: r.opts.Consumer,
			Streams:  []string{topic, ">"}, // ">" means new messages
			Count:    int64(r.opts.Concurrency),
			Block:    r.opts.ReadBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Timeout, retry
			}
			if ctx.Err() != nil {
				return
			}
			slog.Error("Redis read error", "topic", topic, "error", err)
			sleepCtx(ctx, time.Second) // Backoff
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if !r.submit(ctx, topic, msg, pool) {
					return
				}
			}
		}
	}
}

// submit hands one stream entry to the pool. It returns false once ctx ended;
// the entry then stays pending and is picked up again by recovery.
func (r *RedisBroker) submit(ctx context.Context, topic string, msg redis.XMessage, pool *worker.Pool) bool {
	val, ok := msg.Values[payloadField].(string)
	if !ok {
		slog.Error("Invalid message format, dropping", "topic", topic, "msgID", msg.ID)
		r.ack(ctx, topic, msg.ID)
		return true
	}

	task := worker.Task{
		Msg: domain.Message{ID: msg.ID, Topic: topic, Payload: []byte(val)},
		Done: func(ctx context.Context, _ error) {
			r.ack(ctx, topic, msg.ID)
		},
	}
	if err := pool.Submit(ctx, task); err != nil {
		return false
	}
	return true
}

// ack confirms processing using XACK.
func (r *RedisBroker) ack(ctx context.Context, topic, id string) {
	if err := r.client.XAck(ctx, topic, r.opts.Group, id).Err(); err != nil {
		slog.Error("Failed to acknowledge message", "topic", topic, "msgID", id, "error", err)
	}
}

func isBusyGroup(err error) bool {
	// "BUSYGROUP Consumer Group name already exists"
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
