// Package alerts delivers masking signals to operators.
package alerts

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/logmask/internal/masking"
)

// Forwarder delivers signals to an external destination such as the
// websocket hub, the audit database or the Redis counters.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, sig masking.Signal) error
}

// Config contains notifier configuration
type Config struct {
	WarnPerSecond  float64
	Burst          int
	BufferSize     int
	ForwardTimeout time.Duration
}

// Stats counts signals seen by the notifier
type Stats struct {
	Received   int64 `json:"received"`
	Dropped    int64 `json:"dropped"`
	Suppressed int64 `json:"suppressed"`
	Forwarded  int64 `json:"forwarded"`
	Failed     int64 `json:"failed"`
}

// Notifier is a masking.SignalSink. Signal never blocks the renderer: it
// queues onto a buffered channel and Run logs and forwards from there.
type Notifier struct {
	logger     *zap.Logger
	limiter    *rate.Limiter
	timeout    time.Duration
	queue      chan masking.Signal
	forwarders []Forwarder

	received   atomic.Int64
	dropped    atomic.Int64
	suppressed atomic.Int64
	forwarded  atomic.Int64
	failed     atomic.Int64
}

// NewNotifier creates a notifier. logger must not itself mask through the
// masker this notifier listens to, or a failing render would recurse.
func NewNotifier(config Config, logger *zap.Logger, forwarders ...Forwarder) *Notifier {
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if config.ForwardTimeout <= 0 {
		config.ForwardTimeout = 2 * time.Second
	}

	limit := rate.Limit(config.WarnPerSecond)
	if config.WarnPerSecond == 0 {
		limit = rate.Inf
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &Notifier{
		logger:     logger,
		limiter:    rate.NewLimiter(limit, config.Burst),
		timeout:    config.ForwardTimeout,
		queue:      make(chan masking.Signal, config.BufferSize),
		forwarders: forwarders,
	}
}

// AddForwarder registers another destination. It must be called before Run.
func (n *Notifier) AddForwarder(f Forwarder) {
	n.forwarders = append(n.forwarders, f)
}

// Signal implements masking.SignalSink
func (n *Notifier) Signal(sig masking.Signal) {
	n.received.Add(1)
	if sig.Time.IsZero() {
		sig.Time = time.Now()
	}

	select {
	case n.queue <- sig:
	default:
		n.dropped.Add(1)
	}
}

// Run processes queued signals until ctx is done, then drains what is left.
func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info("Starting signal notifier", zap.Int("forwarders", len(n.forwarders)))

	for {
		select {
		case sig := <-n.queue:
			n.handle(ctx, sig)
		case <-ctx.Done():
			n.drain()
			return
		}
	}
}

func (n *Notifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	for {
		select {
		case sig := <-n.queue:
			n.handle(ctx, sig)
		default:
			return
		}
	}
}

func (n *Notifier) handle(ctx context.Context, sig masking.Signal) {
	n.log(sig)

	for _, f := range n.forwarders {
		fctx, cancel := context.WithTimeout(ctx, n.timeout)
		err := f.Forward(fctx, sig)
		cancel()

		if err != nil {
			n.failed.Add(1)
			n.logger.Debug("Failed to forward signal",
				zap.String("forwarder", f.Name()),
				zap.String("kind", string(sig.Kind)),
				zap.Error(err))
			continue
		}
		n.forwarded.Add(1)
	}
}

// log writes the signal at most at the configured rate. Suppressed
// signals are still forwarded.
func (n *Notifier) log(sig masking.Signal) {
	if !n.limiter.Allow() {
		n.suppressed.Add(1)
		return
	}

	fields := []zap.Field{
		zap.String("kind", string(sig.Kind)),
		zap.Time("signal_time", sig.Time),
	}
	if sig.Expression != "" {
		fields = append(fields, zap.String("expression", sig.Expression))
	}
	if sig.Strategy != "" {
		fields = append(fields, zap.String("strategy", sig.Strategy))
	}
	if sig.Count > 0 {
		fields = append(fields, zap.Int("count", sig.Count))
	}
	if sig.Detail != "" {
		fields = append(fields, zap.String("detail", sig.Detail))
	}

	switch sig.Kind {
	case masking.SignalSecurityWarning:
		n.logger.Warn("Sensitive value blocked from log output", fields...)
	case masking.SignalConfigError:
		n.logger.Error("Masking option rejected", fields...)
	case masking.SignalRenderError:
		n.logger.Error("Masking failed", fields...)
	default:
		n.logger.Info("Masking signal", fields...)
	}
}

// Stats returns a snapshot of the notifier counters
func (n *Notifier) Stats() Stats {
	return Stats{
		Received:   n.received.Load(),
		Dropped:    n.dropped.Load(),
		Suppressed: n.suppressed.Load(),
		Forwarded:  n.forwarded.Load(),
		Failed:     n.failed.Load(),
	}
}
