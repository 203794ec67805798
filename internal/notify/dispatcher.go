package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/codr1/Kickabout/internal/db"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("dispatcher closed")
	ErrNoPhone   = errors.New("recipient has no phone number")
)

// Enqueuer accepts messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(msg Message)
}

// FailureRecorder keeps the log of undelivered messages.
type FailureRecorder interface {
	RecordNotificationFailure(ctx context.Context, failure *db.NotificationFailure) error
}

type DispatcherConfig struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64
	SendTimeout   time.Duration
}

// Dispatcher delivers queued messages on a fixed pool of workers, paced by a
// token bucket shared across workers.
type Dispatcher struct {
	sender      Sender
	failures    FailureRecorder
	limiter     *rate.Limiter
	sendTimeout time.Duration
	logger      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

var _ Enqueuer = (*Dispatcher)(nil)

// NewDispatcher starts cfg.Workers delivery goroutines. failures may be nil.
func NewDispatcher(sender Sender, failures FailureRecorder, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	d := &Dispatcher{
		sender:      sender,
		failures:    failures,
		limiter:     rate.NewLimiter(limit, 1),
		sendTimeout: cfg.SendTimeout,
		logger:      log.With().Str("component", "notify").Logger(),
		queue:       make(chan Message, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue never blocks. A message that cannot be queued is recorded as a
// failure straight away.
func (d *Dispatcher) Enqueue(msg Message) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.fail(msg, ErrClosed)
		return
	}
	select {
	case d.queue <- msg:
		d.mu.RUnlock()
	default:
		d.mu.RUnlock()
		d.fail(msg, ErrQueueFull)
	}
}

// Close stops accepting messages and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error().Interface("panic", rec).Str("kind", string(msg.Kind)).Msg("Notification delivery panicked")
		}
	}()

	if msg.Phone == "" {
		d.fail(msg, ErrNoPhone)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.fail(msg, err)
		return
	}
	if err := d.sender.Send(ctx, msg.Phone, Format(msg)); err != nil {
		d.fail(msg, err)
		return
	}

	d.logger.Debug().
		Str("kind", string(msg.Kind)).
		Str("user_id", msg.UserID).
		Str("game_id", msg.GameID).
		Msg("Notification delivered")
}

func (d *Dispatcher) fail(msg Message, cause error) {
	d.logger.Error().
		Err(cause).
		Str("kind", string(msg.Kind)).
		Str("user_id", msg.UserID).
		Str("game_id", msg.GameID).
		Msg("Notification not delivered")

	if d.failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.failures.RecordNotificationFailure(ctx, &db.NotificationFailure{
		Kind:   string(msg.Kind),
		UserID: msg.UserID,
		GameID: msg.GameID,
		Error:  cause.Error(),
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to record notification failure")
	}
}
