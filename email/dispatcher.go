package email

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherConfig controls queueing and retry behavior.
type DispatcherConfig struct {
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

type jobKind int

const (
	jobVerification jobKind = iota
	jobPasswordReset
	jobWelcome
)

type job struct {
	kind       jobKind
	to         string
	token      string
	ttl        time.Duration
	employeeID string
}

// Dispatcher is an asynchronous Sender: enqueue on the caller's goroutine,
// deliver with retries on a worker. A full queue drops the message rather
// than blocking a request; delivery here is best-effort and the engine's
// flows never depend on it succeeding. A nil Dispatcher discards everything.
type Dispatcher struct {
	cfg       DispatcherConfig
	sender    Sender
	ch        chan job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	// OnError is called when a message is given up on after retries. It is
	// non-nil after NewDispatcher.
	OnError func(to string, err error)
}

func NewDispatcher(cfg DispatcherConfig, sender Sender) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if sender == nil {
		sender = NoOpSender{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sender:  sender,
		ch:      make(chan job, cfg.QueueSize),
		done:    make(chan struct{}),
		OnError: func(string, error) {},
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case j := <-d.ch:
			d.deliver(j)
		case <-d.done:
			for {
				select {
				case j := <-d.ch:
					d.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	var err error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.cfg.RetryBackoff * time.Duration(attempt)):
			case <-d.done:
				// Shutting down: one last immediate try, no more waiting.
			}
		}

		ctx := context.Background()
		switch j.kind {
		case jobVerification:
			err = d.sender.SendVerificationEmail(ctx, j.to, j.token, j.ttl)
		case jobPasswordReset:
			err = d.sender.SendPasswordResetEmail(ctx, j.to, j.token, j.ttl)
		case jobWelcome:
			err = d.sender.SendWelcomeEmail(ctx, j.to, j.employeeID)
		}
		if err == nil {
			return
		}
	}
	d.OnError(j.to, err)
}

func (d *Dispatcher) enqueue(j job) error {
	if d == nil || d.closed.Load() {
		return nil
	}

	select {
	case d.ch <- j:
	default:
		d.dropped.Add(1)
	}
	return nil
}

func (d *Dispatcher) SendVerificationEmail(_ context.Context, to, token string, ttl time.Duration) error {
	return d.enqueue(job{kind: jobVerification, to: to, token: token, ttl: ttl})
}

func (d *Dispatcher) SendPasswordResetEmail(_ context.Context, to, token string, ttl time.Duration) error {
	return d.enqueue(job{kind: jobPasswordReset, to: to, token: token, ttl: ttl})
}

func (d *Dispatcher) SendWelcomeEmail(_ context.Context, to, employeeID string) error {
	return d.enqueue(job{kind: jobWelcome, to: to, employeeID: employeeID})
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many messages were discarded because the queue was
// full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
