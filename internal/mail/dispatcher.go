// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/pkg/errutil"
)

var _ auth.MailSender = (*Dispatcher)(nil)

// ErrDispatcherClosed is returned by SendOtp after Close.
var ErrDispatcherClosed = oops.Code("MAIL_DISPATCHER_CLOSED").Errorf("mail dispatcher is closed")

// DispatcherConfig sizes a Dispatcher.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// SendTimeout bounds one delivery including retries.
	SendTimeout time.Duration
}

// DispatcherMetrics counts dispatcher outcomes. A nil value records nothing.
type DispatcherMetrics struct {
	Sent      prometheus.Counter
	Failed    prometheus.Counter
	QueueFull prometheus.Counter
}

// NewDispatcherMetrics creates and registers the dispatcher metrics.
func NewDispatcherMetrics(reg prometheus.Registerer) *DispatcherMetrics {
	m := &DispatcherMetrics{
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_mail_sent_total",
			Help: "OTP mails delivered by the dispatcher",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_mail_failed_total",
			Help: "OTP mails the dispatcher gave up on",
		}),
		QueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_mail_queue_full_total",
			Help: "OTP mails rejected because the dispatch queue was full",
		}),
	}
	reg.MustRegister(m.Sent, m.Failed, m.QueueFull)
	return m
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

type job struct {
	ctx   context.Context
	email string
	code  string
}

// Dispatcher queues OTP mails and delivers them from a fixed worker pool,
// so request handlers never wait on SMTP.
type Dispatcher struct {
	next    auth.MailSender
	cfg     DispatcherConfig
	logger  *slog.Logger
	metrics *DispatcherMetrics

	jobs   chan job
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts cfg.Workers workers delivering through next.
func NewDispatcher(next auth.MailSender, cfg DispatcherConfig, metrics *DispatcherMetrics, logger *slog.Logger) (*Dispatcher, error) {
	if next == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	if cfg.Workers < 1 {
		return nil, oops.Code("MAIL_DISPATCHER_INVALID").With("workers", cfg.Workers).Errorf("at least one worker is required")
	}
	if cfg.QueueSize < 1 {
		return nil, oops.Code("MAIL_DISPATCHER_INVALID").With("queue_size", cfg.QueueSize).Errorf("queue size must be positive")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		next:    next,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		jobs:    make(chan job, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
	if d.metrics == nil {
		d.metrics = &DispatcherMetrics{}
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}
	return d, nil
}

// SendOtp enqueues the mail and returns immediately. It fails with
// MAIL_QUEUE_FULL when the queue is full and MAIL_DISPATCHER_CLOSED after Close.
func (d *Dispatcher) SendOtp(ctx context.Context, email, code string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), email: email, code: code}:
		return nil
	default:
		inc(d.metrics.QueueFull)
		return oops.Code("MAIL_QUEUE_FULL").
			With("email", email).
			With("queue_size", d.cfg.QueueSize).
			Errorf("mail queue is full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.jobs:
			d.deliver(j)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still queued.
func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.jobs:
			d.deliver(j)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.cfg.SendTimeout)
	defer cancel()

	if err := d.next.SendOtp(ctx, j.email, j.code); err != nil {
		inc(d.metrics.Failed)
		errutil.LogError(ctx, d.logger, "failed to deliver otp mail", err, "email", j.email)
		return
	}
	inc(d.metrics.Sent)
}

// Close stops accepting mail, delivers what is queued and waits for the
// workers. It returns ctx's error if the drain outlives ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stop)
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
		return oops.Code("MAIL_DISPATCHER_DRAIN_TIMEOUT").Wrap(ctx.Err())
	}
}

// Pending returns the number of queued mails.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}
