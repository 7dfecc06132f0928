// Package bus implements in-process, addressed request/reply messaging.
//
// Each address has exactly one consumer. The consumer runs on its own
// goroutine and handles one message at a time, so state owned by a handler
// needs no further locking. Requests wait for a reply, a failure, the
// caller's context, or the send timeout, whichever comes first.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInboxSize   = 64
	defaultSendTimeout = 30 * time.Second
)

// Errors returned by the bus itself, as opposed to failures sent by handlers.
var (
	ErrNoHandlers   = errors.New("no handlers for address")
	ErrAddressInUse = errors.New("address already has a consumer")
	ErrClosed       = errors.New("bus closed")
	ErrNoReply      = errors.New("handler returned without replying")
)

// Config controls inbox sizing and default timeouts.
//   - InboxSize: buffered messages per address (default 64).
//   - SendTimeout: applied when DeliveryOptions.Timeout is zero (default 30s).
//   - Logger: optional structured logger.
type Config struct {
	InboxSize   int
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// DeliveryOptions travel with a single request.
type DeliveryOptions struct {
	Headers map[string]string
	Timeout time.Duration
}

// Handler processes one message and must answer it with Reply or Fail.
type Handler func(msg *Message)

// Bus routes requests to registered consumers.
type Bus struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.RWMutex
	consumers map[string]*consumer
	closed    bool
	wg        sync.WaitGroup
}

type consumer struct {
	address string
	inbox   chan *Message
	handler Handler
}

// New constructs an empty Bus.
func New(cfg Config) *Bus {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		cfg:       cfg,
		logger:    logger,
		consumers: make(map[string]*consumer),
	}
}

// Consumer registers handler for address and starts its goroutine.
func (b *Bus) Consumer(address string, handler Handler) error {
	if address == "" {
		return errors.New("address is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, exists := b.consumers[address]; exists {
		return fmt.Errorf("%w: %s", ErrAddressInUse, address)
	}
	c := &consumer{
		address: address,
		inbox:   make(chan *Message, b.cfg.InboxSize),
		handler: handler,
	}
	b.consumers[address] = c
	b.wg.Add(1)
	go b.run(c)
	b.logger.Debug("consumer registered", zap.String("address", address))
	return nil
}

// Request sends body to address and blocks until the consumer answers.
func (b *Bus) Request(ctx context.Context, address string, body []byte, opts DeliveryOptions) ([]byte, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.cfg.SendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg := &Message{
		address: address,
		headers: cloneHeaders(opts.Headers),
		body:    body,
		ctx:     ctx,
		answer:  make(chan answer, 1),
	}
	if err := b.send(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case res := <-msg.answer:
		return res.body, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s: %w", address, ctx.Err())
	}
}

// send holds the read lock while enqueueing so Close cannot close the inbox mid-send.
func (b *Bus) send(ctx context.Context, msg *Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	c, ok := b.consumers[msg.address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandlers, msg.address)
	}
	select {
	case c.inbox <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", msg.address, ctx.Err())
	}
}

// Close stops accepting requests, lets consumers drain queued messages, and
// waits for their goroutines to exit. It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, c := range b.consumers {
			close(c.inbox)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) run(c *consumer) {
	defer b.wg.Done()
	for msg := range c.inbox {
		if err := msg.ctx.Err(); err != nil {
			b.logger.Debug("dropping expired message", zap.String("address", c.address), zap.Error(err))
			continue
		}
		b.dispatch(c, msg)
	}
}

func (b *Bus) dispatch(c *consumer, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("consumer panic recovered",
				zap.String("address", c.address),
				zap.Any("panic", rec),
			)
			msg.Fail(-1, fmt.Sprintf("handler panic: %v", rec))
		}
	}()
	c.handler(msg)
	if msg.deliver(answer{err: ErrNoReply}) {
		b.logger.Warn("handler returned without replying", zap.String("address", c.address))
	}
}

func cloneHeaders(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
