package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Delivery outcomes reported to a DeliveryRecorder.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// DeliveryRecorder counts delivery outcomes. metrics.Collector implements it.
type DeliveryRecorder interface {
	RecordMailDelivery(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMailDelivery(string) {}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	// Workers is the number of concurrent senders.
	Workers int
	// QueueSize is how many messages may wait before Enqueue starts dropping.
	QueueSize int
	// Timeout bounds each send.
	Timeout time.Duration
}

// DefaultDispatcherConfig matches the defaults in internal/config.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   2,
		QueueSize: 64,
		Timeout:   DefaultTimeout,
	}
}

// Dispatcher sends queued messages in the background. Delivery is
// at-most-once: a full queue drops the message and a failed send is logged
// and counted but never retried.
type Dispatcher struct {
	sender   Sender
	config   DispatcherConfig
	recorder DeliveryRecorder
	logger   *slog.Logger
	queue    chan Message
	done     chan struct{}
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once

	// mu orders Enqueue against Stop: once stopped is set, nothing new
	// reaches the queue, so the final drain sees every accepted message.
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher wires a dispatcher; call Start before enqueueing.
func NewDispatcher(sender Sender, cfg DispatcherConfig, recorder DeliveryRecorder, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		sender:   sender,
		config:   cfg,
		recorder: recorder,
		logger:   logger,
		queue:    make(chan Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		d.logger.Info("starting mail dispatcher",
			slog.Int("workers", d.config.Workers),
			slog.Int("queue", d.config.QueueSize),
		)
		for i := 0; i < d.config.Workers; i++ {
			d.wg.Add(1)
			go d.worker(i)
		}
	})
}

// Stop signals the workers and waits for in-flight sends to finish.
// Messages still queued are discarded and counted as dropped.
func (d *Dispatcher) Stop() {
	d.stop.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		d.logger.Info("shutting down mail dispatcher", slog.Int("pending", len(d.queue)))
		close(d.done)
		d.wg.Wait()

		for {
			select {
			case msg := <-d.queue:
				d.drop(msg, "dispatcher stopped")
			default:
				return
			}
		}
	})
}

// Enqueue hands msg to the workers without blocking. It reports false when
// the queue is full or the dispatcher is stopping, in which case the
// message is dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.drop(msg, "dispatcher stopped")
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.drop(msg, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(msg Message, reason string) {
	d.recorder.RecordMailDelivery(OutcomeDropped)
	d.logger.Warn("dropping email",
		slog.String("subject", msg.Subject),
		slog.String("reason", reason),
	)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case msg := <-d.queue:
			d.send(id, msg)
		}
	}
}

func (d *Dispatcher) send(worker int, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.Send(ctx, msg); err != nil {
		d.recorder.RecordMailDelivery(OutcomeFailed)
		d.logger.Error("email delivery failed",
			slog.Int("worker", worker),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}

	d.recorder.RecordMailDelivery(OutcomeSent)
	d.logger.Debug("email delivered",
		slog.Int("worker", worker),
		slog.String("subject", msg.Subject),
		slog.Duration("duration", time.Since(start)),
	)
}
