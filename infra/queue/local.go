package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrFull   = errors.New("queue: buffer full")
	ErrClosed = errors.New("queue: closed")
)

type localEnvelope struct {
	topic string
	msg   Message
}

// LocalQueue is an in-process stand-in for the broker: a bounded buffer
// drained by a fixed pool of workers. Failed messages are logged, not retried.
// Handlers run under a context of their own that is cancelled only when a
// Shutdown drain deadline passes.
type LocalQueue struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	buf        chan localEnvelope
	workers    int
	closed     bool
	wg         sync.WaitGroup
	jobTimeout time.Duration

	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

func NewLocalQueue(workers, size int) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	return &LocalQueue{
		handlers: make(map[string]Handler),
		buf:      make(chan localEnvelope, size),
		workers:  workers,
	}
}

// WithJobTimeout bounds each handler call. Zero means no bound.
func (q *LocalQueue) WithJobTimeout(d time.Duration) *LocalQueue {
	q.jobTimeout = d
	return q
}

func (q *LocalQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[topic]; ok {
		return fmt.Errorf("topic %s already subscribed", topic)
	}
	q.handlers[topic] = handler
	return nil
}

// Start launches the workers. Handlers inherit the values of ctx but not its
// cancellation, so queued jobs still run while the process drains.
func (q *LocalQueue) Start(ctx context.Context) {
	q.jobCtx, q.cancelJobs = context.WithCancel(context.WithoutCancel(ctx))
	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for env := range q.buf {
				q.handle(q.jobCtx, env)
			}
		}()
	}
}

func (q *LocalQueue) handle(ctx context.Context, env localEnvelope) {
	q.mu.RLock()
	handler, ok := q.handlers[env.topic]
	q.mu.RUnlock()
	if !ok {
		slog.Warn("no handler for topic, dropping message", "topic", env.topic, "msg_id", env.msg.ID)
		return
	}
	if q.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.jobTimeout)
		defer cancel()
	}
	if err := handler(ctx, env.msg); err != nil {
		slog.Error("handle message failed", "topic", env.topic, "msg_id", env.msg.ID, "error", err)
	}
}

// Send buffers msg without blocking.
func (q *LocalQueue) Send(ctx context.Context, topic string, msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.buf <- localEnvelope{topic: topic, msg: msg}:
		return nil
	default:
		return ErrFull
	}
}

// Stop refuses new messages, drains the buffer and waits for the workers.
func (q *LocalQueue) Stop() error {
	return q.Shutdown(context.Background())
}

// Shutdown refuses new messages and waits for the workers to drain the
// buffer. When ctx ends first the running handlers are cancelled, the rest of
// the buffer is handed over with a cancelled context and ctx.Err is returned.
func (q *LocalQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.buf)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.abortJobs()
		return nil
	case <-ctx.Done():
		q.abortJobs()
		<-done
		return fmt.Errorf("drain local queue: %w", ctx.Err())
	}
}

func (q *LocalQueue) abortJobs() {
	if q.cancelJobs != nil {
		q.cancelJobs()
	}
}
