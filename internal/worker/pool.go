package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/dontdude/markcheck/internal/domain"
)

// Task is one consumed message plus the callback that settles it with the broker.
type Task struct {
	Msg domain.Message
	// Done is called with the handler's result once it returns. Optional.
	Done func(ctx context.Context, err error)
}

// Pool implements a fixed-size worker pool pattern.
// It bounds how many handler invocations run at once; distinct messages are
// processed concurrently and in no particular order.
type Pool struct {
	// workerCount determines how many handlers can run concurrently.
	workerCount int
	// tasksCh is the queue for incoming messages.
	tasksCh chan Task
	// wg tracks active workers to ensure graceful shutdown.
	wg       sync.WaitGroup
	handler  domain.Handler
	stopOnce sync.Once
}

// NewPool initializes the worker pool with a fixed concurrency limit.
func NewPool(concurrency int, handler domain.Handler) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		workerCount: concurrency,
		// Buffer the channel to allow non-blocking submission up to a certain point.
		tasksCh: make(chan Task, concurrency),
		handler: handler,
	}
}

// Start spawns the fixed number of worker goroutines.
// It returns immediately. Handlers run with a context detached from ctx's
// cancellation so in-flight work can finish while the pool drains.
func (p *Pool) Start(ctx context.Context) {
	slog.Info("Starting worker pool", "concurrency", p.workerCount)

	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i)
	}
}

// Stop closes the task queue and blocks until every worker has exited.
// It is safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		slog.Info("Stopping worker pool, waiting for tasks to drain...")
		close(p.tasksCh)
		p.wg.Wait()
		slog.Info("Worker pool stopped")
	})
}

// Submit adds a task to the queue.
// It blocks while every worker is busy and the buffer is full, or until ctx ends.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.tasksCh <- task:
		return nil
	}
}

// worker is the core logic that runs inside a goroutine.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	slog.Debug("Worker started", "workerID", id)

	for task := range p.tasksCh {
		slog.Debug("Processing message", "workerID", id, "msgID", task.Msg.ID, "topic", task.Msg.Topic)

		// Handlers log their own failures with context.
		err := p.run(ctx, task.Msg)
		if err != nil {
			slog.Debug("Message handler returned error", "workerID", id, "msgID", task.Msg.ID, "topic", task.Msg.Topic, "error", err)
		}
		if task.Done != nil {
			task.Done(ctx, err)
		}
	}

	slog.Debug("Worker stopped", "workerID", id)
}

// run invokes the handler, converting a panic into an error so one bad
// message cannot take the pool down.
func (p *Pool) run(ctx context.Context, msg domain.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Message handler panicked", "msgID", msg.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, msg)
}
