package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relayhq/botgate/internal/domain"
)

// Sink receives flushed event batches. Flush is best-effort; a failed batch
// is retained by the reporter and retried on the next scheduled flush.
type Sink interface {
	Flush(ctx context.Context, events []*domain.LifecycleEvent) error
	Close() error
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Flush(context.Context, []*domain.LifecycleEvent) error { return nil }
func (NoopSink) Close() error                                          { return nil }

const (
	defaultFlushInterval = 30 * time.Second
	defaultBufferSize    = 1024
	flushTimeout         = 10 * time.Second

	// maxRetained caps buffer growth across failed flushes. Oldest events
	// are dropped first.
	maxRetained = 8192
)

// Reporter buffers lifecycle events in memory and periodically flushes them
// to a sink. Record never blocks the request path: when the ingest channel is
// full, the event is dropped and counted.
type Reporter struct {
	sink     Sink
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	ingest  chan *domain.LifecycleEvent
	closeCh chan chan struct{}
	buf     []*domain.LifecycleEvent
	dropped int
}

// ReporterOption customizes a Reporter.
type ReporterOption func(*Reporter)

// WithFlushInterval sets the flush interval.
func WithFlushInterval(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBufferSize sets the ingest channel capacity.
func WithBufferSize(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.ingest = make(chan *domain.LifecycleEvent, n)
		}
	}
}

// WithClock injects a clock, letting tests drive the flush timer.
func WithClock(c clock.Clock) ReporterOption {
	return func(r *Reporter) {
		r.clock = c
	}
}

// WithLogger sets the reporter's logger.
func WithLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// NewReporter creates a reporter and starts its flush loop.
func NewReporter(sink Sink, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		sink:     sink,
		clock:    clock.New(),
		interval: defaultFlushInterval,
		logger:   slog.Default(),
		ingest:   make(chan *domain.LifecycleEvent, defaultBufferSize),
		closeCh:  make(chan chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.loop()
	return r
}

// Record buffers an event for the next flush. It never blocks: if the buffer
// is full the event is dropped.
func (r *Reporter) Record(event *domain.LifecycleEvent) {
	select {
	case r.ingest <- event:
	default:
		r.logger.Warn("telemetry buffer full, dropping event",
			slog.String("type", string(event.Type)),
			slog.String("route", event.Route),
		)
	}
}

// Close drains pending events, performs a final flush, and closes the sink.
func (r *Reporter) Close() error {
	done := make(chan struct{})
	r.closeCh <- done
	<-done
	return r.sink.Close()
}

func (r *Reporter) loop() {
	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case event := <-r.ingest:
			r.buffer(event)
		case <-ticker.C:
			r.flush()
		case done := <-r.closeCh:
			r.drain()
			r.flush()
			close(done)
			return
		}
	}
}

func (r *Reporter) buffer(event *domain.LifecycleEvent) {
	if len(r.buf) >= maxRetained {
		r.buf = r.buf[1:]
		r.dropped++
	}
	r.buf = append(r.buf, event)
}

func (r *Reporter) drain() {
	for {
		select {
		case event := <-r.ingest:
			r.buffer(event)
		default:
			return
		}
	}
}

// flush sends the accumulated buffer to the sink. On failure the buffer is
// kept so the next scheduled flush retries with the accumulated events.
func (r *Reporter) flush() {
	if len(r.buf) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.sink.Flush(ctx, r.buf); err != nil {
		r.logger.Error("telemetry flush failed",
			slog.Int("events", len(r.buf)),
			slog.String("error", err.Error()),
		)
		return
	}

	if r.dropped > 0 {
		r.logger.Warn("telemetry events dropped under backpressure", slog.Int("count", r.dropped))
		r.dropped = 0
	}
	r.buf = nil
}
