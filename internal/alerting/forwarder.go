package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fleet-sentinel/internal/queue"
)

// Channel delivers an alert to an external system.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// ForwarderConfig configures outbox workers and per-channel retries.
type ForwarderConfig struct {
	Workers        int           `yaml:"workers"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ShutdownWait   time.Duration `yaml:"shutdown_wait"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	DeadLetterSize int           `yaml:"dead_letter_size"`
}

// DefaultForwarderConfig returns the default forwarder configuration.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		Workers:        2,
		PollInterval:   50 * time.Millisecond,
		ShutdownWait:   10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		AttemptTimeout: 5 * time.Second,
		DeadLetterSize: 1000,
	}
}

// DeadLetter is an alert that exhausted its retries on one channel.
type DeadLetter struct {
	Alert    Alert     `json:"alert"`
	Channel  string    `json:"channel"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// Forwarder drains the alert outbox and delivers each alert to every channel.
type Forwarder struct {
	outbox   *queue.RingBuffer[Alert]
	channels []Channel
	config   ForwarderConfig
	logger   *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once

	mu         sync.Mutex
	deadLetter []DeadLetter

	delivered uint64
	failed    uint64
}

// NewForwarder creates a forwarder over outbox.
func NewForwarder(outbox *queue.RingBuffer[Alert], cfg ForwarderConfig, logger *slog.Logger, channels ...Channel) *Forwarder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		outbox:   outbox,
		channels: channels,
		config:   cfg,
		logger:   logger.With("component", "forwarder"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the workers.
func (f *Forwarder) Start(ctx context.Context) {
	for i := 0; i < f.config.Workers; i++ {
		f.wg.Add(1)
		go f.worker(ctx, i)
	}

	names := make([]string, len(f.channels))
	for i, ch := range f.channels {
		names[i] = ch.Name()
	}
	f.logger.Info("alert forwarder started", "workers", f.config.Workers, "channels", names)
}

func (f *Forwarder) worker(ctx context.Context, id int) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		alert, err := f.outbox.PopWithTimeout(f.config.PollInterval)
		if err != nil {
			if errors.Is(err, queue.ErrQueueEmpty) {
				continue
			}
			// Closed and drained.
			f.logger.Debug("forwarder worker stopping", "worker_id", id)
			return
		}

		for _, ch := range f.channels {
			f.deliver(ctx, ch, alert)
		}
	}
}

// deliver sends alert to ch with exponential backoff between attempts.
func (f *Forwarder) deliver(ctx context.Context, ch Channel, alert Alert) {
	backoff := f.config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= f.config.MaxRetries; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if f.config.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.config.AttemptTimeout)
		}
		lastErr = ch.Send(attemptCtx, alert)
		cancel()

		if lastErr == nil {
			atomic.AddUint64(&f.delivered, 1)
			return
		}

		f.logger.Warn("alert delivery failed",
			"channel", ch.Name(),
			"alert_id", alert.ID,
			"attempt", attempt,
			"max_retries", f.config.MaxRetries,
			"error", lastErr,
		)

		if attempt == f.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			f.toDeadLetter(alert, ch.Name(), attempt, "context cancelled")
			return
		case <-f.stopCh:
			f.toDeadLetter(alert, ch.Name(), attempt, "forwarder stopped")
			return
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * f.config.BackoffFactor)
		if f.config.MaxBackoff > 0 && backoff > f.config.MaxBackoff {
			backoff = f.config.MaxBackoff
		}
	}

	f.toDeadLetter(alert, ch.Name(), f.config.MaxRetries, lastErr.Error())
}

func (f *Forwarder) toDeadLetter(alert Alert, channel string, attempts int, reason string) {
	atomic.AddUint64(&f.failed, 1)

	f.mu.Lock()
	f.deadLetter = append(f.deadLetter, DeadLetter{
		Alert:    alert,
		Channel:  channel,
		Attempts: attempts,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	if max := f.config.DeadLetterSize; max > 0 && len(f.deadLetter) > max {
		f.deadLetter = f.deadLetter[len(f.deadLetter)-max:]
	}
	f.mu.Unlock()

	f.logger.Error("alert moved to dead letter",
		"alert_id", alert.ID,
		"channel", channel,
		"attempts", attempts,
		"reason", reason,
	)
}

// DeadLetters returns a copy of the failed deliveries.
func (f *Forwarder) DeadLetters() []DeadLetter {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DeadLetter, len(f.deadLetter))
	copy(out, f.deadLetter)
	return out
}

// Stop closes the outbox, lets the workers drain it, and waits up to
// ShutdownWait for them to finish.
func (f *Forwarder) Stop() {
	f.once.Do(func() {
		f.outbox.Close()

		done := make(chan struct{})
		go func() {
			f.wg.Wait()
			close(done)
		}()

		wait := f.config.ShutdownWait
		if wait <= 0 {
			wait = 10 * time.Second
		}
		select {
		case <-done:
			f.logger.Info("alert forwarder stopped gracefully")
		case <-time.After(wait):
			// Abort pending backoffs.
			close(f.stopCh)
			f.logger.Warn("alert forwarder shutdown timed out")
		}
	})
}

// Metrics returns forwarder statistics.
func (f *Forwarder) Metrics() ForwarderMetrics {
	f.mu.Lock()
	dead := len(f.deadLetter)
	f.mu.Unlock()
	return ForwarderMetrics{
		Delivered:  atomic.LoadUint64(&f.delivered),
		Failed:     atomic.LoadUint64(&f.failed),
		DeadLetter: dead,
		Outbox:     f.outbox.Metrics(),
	}
}

// ForwarderMetrics holds forwarder statistics.
type ForwarderMetrics struct {
	Delivered  uint64             `json:"delivered"`
	Failed     uint64             `json:"failed"`
	DeadLetter int                `json:"dead_letter"`
	Outbox     queue.QueueMetrics `json:"outbox"`
}
