// Package security provides a non-blocking audit publisher for security events.
//
// Emit never blocks the login path: events go into a bounded ring buffer and a
// background worker flushes them to the configured sink in batches. Sink failures
// are logged and the batch is dropped.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "bikeauth/pkg/platform/audit"
	"bikeauth/pkg/requestcontext"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	defaultWriteTimeout  = 5 * time.Second
)

// Publisher buffers security events and flushes them asynchronously.
type Publisher struct {
	buf           *RingBuffer
	sink          audit.Sink
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	notify    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBufferSize bounds the number of events held in memory.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buf = NewRingBuffer(n)
	}
}

// WithBatchSize sets the maximum number of events per sink write.
func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how often the worker flushes when no new events arrive.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// New starts a publisher that flushes into sink. Call Close to drain and stop it.
func New(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		buf:           NewRingBuffer(0),
		sink:          sink,
		logger:        slog.Default(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		notify:        make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Emit enqueues the event. Missing timestamp, severity, subject and request ID are
// filled from the event name and request context.
func (p *Publisher) Emit(ctx context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Severity == "" {
		event.Severity = audit.AuditEvent(event.Action).Severity()
	}
	if event.Subject == "" {
		if uid := requestcontext.UserID(ctx); !uid.IsNil() {
			event.Subject = uid.String()
		}
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	p.buf.Enqueue(event)

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Dropped reports how many events were lost to buffer overflow.
func (p *Publisher) Dropped() int64 {
	return p.buf.Dropped()
}

// Close stops the worker after draining every buffered event.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			p.flush()
			return
		case <-p.notify:
			p.flush()
		case <-ticker.C:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	for {
		batch := p.buf.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		if err := p.sink.Write(ctx, batch); err != nil {
			p.logger.Error("failed to write security audit batch",
				"error", err,
				"batch_size", len(batch),
			)
		}
		cancel()
	}
}
