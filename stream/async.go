package stream

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/metrics"
)

var (
	ErrQueueFull = errors.New("publish queue is full")

	ErrPublisherClosed = errors.New("publisher is closed")
)

type message struct {
	ctx   context.Context
	key   string
	value any
}

// AsyncPublisher moves delivery off the caller's goroutine. Publish only
// enqueues; a single worker hands messages to the wrapped Publisher in order.
// When the queue is full the message is dropped.
type AsyncPublisher struct {
	next   Publisher
	queue  chan message
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncPublisher(next Publisher, size int, logger *zap.Logger) *AsyncPublisher {
	if size <= 0 {
		size = 1
	}
	p := &AsyncPublisher{
		next:   next,
		queue:  make(chan message, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish returns ErrQueueFull instead of waiting for room. The message
// outlives ctx's cancellation but keeps its values.
func (p *AsyncPublisher) Publish(ctx context.Context, key string, value any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- message{ctx: context.WithoutCancel(ctx), key: key, value: value}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.next.Publish(msg.ctx, msg.key, msg.value); err != nil {
			metrics.PublishFailures.Inc()
			p.logger.Warn("Queued message not delivered", zap.String("key", msg.key), zap.Error(err))
		}
	}
}

// Close delivers what is already queued, then closes the wrapped Publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}
