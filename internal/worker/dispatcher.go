package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultDispatchTimeout = 30 * time.Second
	defaultConcurrency     = 5
)

type DispatcherConfig struct {
	Timeout     time.Duration
	Concurrency int
	Currency    string
}

// DispatchStats are cumulative counters since start.
type DispatchStats struct {
	Attempted int64
	Delivered int64
	Failed    int64
}

// Dispatcher delivers each match in its own goroutine. A semaphore bounds how
// many deliveries talk to the notifier at once; waiting goroutines queue on
// it, nothing is ever dropped.
type Dispatcher struct {
	notifier domain.Notifier
	timeout  time.Duration
	currency string
	logger   *slog.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// closed guards wg.Add against a concurrent Shutdown.
	mu     sync.Mutex
	closed bool

	attempted atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewDispatcher(notifier domain.Notifier, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDispatchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		notifier: notifier,
		timeout:  cfg.Timeout,
		currency: cfg.Currency,
		logger:   logger.With("component", "dispatcher"),
		sem:      make(chan struct{}, cfg.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch schedules exactly one delivery attempt for m and returns at once.
// Matches handed over after Shutdown are counted as failed.
func (d *Dispatcher) Dispatch(m domain.Match) {
	id := uuid.NewString()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.attempted.Add(1)
		d.failed.Add(1)
		d.logger.Warn("Dispatcher is shut down, match dropped",
			slog.String("dispatch_id", id),
			slog.String("subscriber", m.Subscriber),
			slog.String("threshold", m.Threshold.String()))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.deliver(id, m)
}

func (d *Dispatcher) deliver(id string, m domain.Match) {
	defer d.wg.Done()

	log := d.logger.With(
		slog.String("dispatch_id", id),
		slog.String("subscriber", m.Subscriber),
		slog.String("threshold", m.Threshold.String()))

	select {
	case d.sem <- struct{}{}:
	case <-d.ctx.Done():
		d.attempted.Add(1)
		d.failed.Add(1)
		log.Warn("Dispatcher stopped before delivery", slog.String("error", d.ctx.Err().Error()))
		return
	}
	defer func() { <-d.sem }()

	d.attempted.Add(1)
	if err := d.send(m); err != nil {
		d.failed.Add(1)
		log.Error("Notification failed", slog.String("error", err.Error()))
		return
	}
	d.delivered.Add(1)
	log.Info("Notification sent")
}

// send is the failure boundary of a single attempt, panics included.
func (d *Dispatcher) send(m domain.Match) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	return d.notifier.Notify(ctx, m.Subscriber, ComposeMessage(m, d.currency))
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight deliveries until ctx expires, then cancels
// whatever is still running.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Attempted: d.attempted.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
	}
}
