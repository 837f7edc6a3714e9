// Package app wires the delivery worker runtime: the polling loop that
// drains the email queue and the gRPC health surface.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giftring/giftring/internal/platform/timeouts"
	workerdomain "github.com/giftring/giftring/internal/services/worker/domain"
	workerstorage "github.com/giftring/giftring/internal/services/worker/storage"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultLeaseTTL     = 30 * time.Second
	defaultBatchSize    = 10
)

// Config controls queue polling and retry behavior.
type Config struct {
	PollInterval time.Duration
	LeaseTTL     time.Duration
	BatchSize    int
	Retry        workerdomain.RetryPolicy
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Loop drains the email queue until its context is canceled.
type Loop struct {
	store     workerstorage.EmailStore
	processor *workerdomain.Processor
	cfg       Config
	clock     func() time.Time
	logf      func(format string, args ...any)
	tracer    trace.Tracer
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock overrides the loop clock.
func WithClock(clock func() time.Time) LoopOption {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger overrides the loop log sink.
func WithLogger(logf func(format string, args ...any)) LoopOption {
	return func(l *Loop) {
		if logf != nil {
			l.logf = logf
		}
	}
}

// NewLoop constructs the queue-draining loop.
func NewLoop(store workerstorage.EmailStore, sender workerdomain.Sender, cfg Config, opts ...LoopOption) *Loop {
	cfg = cfg.normalized()
	loop := &Loop{
		store:  store,
		cfg:    cfg,
		clock:  time.Now,
		logf:   log.Printf,
		tracer: otel.Tracer("giftring/worker"),
	}
	for _, opt := range opts {
		opt(loop)
	}
	loop.processor = workerdomain.NewProcessor(sender, cfg.Retry, loop.clock)
	return loop
}

// Run polls the queue until ctx is canceled. A drain failure is logged and
// retried on the next tick; it never stops the loop.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("email store is not configured")
	}
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if n, err := l.drainOnce(ctx); err != nil {
			l.logf("drain email queue: %v", err)
		} else if n > 0 {
			l.logf("processed %d queued emails", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drainOnce claims one batch of due emails and settles each of them.
func (l *Loop) drainOnce(ctx context.Context) (int, error) {
	now := l.clock().UTC()
	claimed, err := l.store.ClaimDueEmails(ctx, now, now.Add(l.cfg.LeaseTTL), l.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due emails: %w", err)
	}
	for _, record := range claimed {
		l.settle(ctx, record)
	}
	return len(claimed), nil
}

func (l *Loop) settle(ctx context.Context, record workerstorage.EmailRecord) {
	ctx, span := l.tracer.Start(ctx, "worker.send_email",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("email.id", record.ID),
			attribute.Int("email.attempt", int(record.AttemptCount)+1),
		),
	)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, timeouts.EmailSend)
	defer cancel()
	result := l.processor.Process(sendCtx, workerdomain.Email{
		ID:              record.ID,
		RecipientUserID: record.RecipientUserID,
		Address:         record.Address,
		Locale:          record.Locale,
		Subject:         record.Subject,
		Body:            record.Body,
		AttemptCount:    record.AttemptCount,
	})

	switch result.Outcome {
	case workerdomain.OutcomeSent:
		if err := l.store.MarkEmailSent(ctx, record.ID, l.clock().UTC()); err != nil {
			span.SetStatus(codes.Error, err.Error())
			l.logf("mark email %d sent: %v", record.ID, err)
		}
	case workerdomain.OutcomeRetry:
		span.SetStatus(codes.Error, result.Err.Error())
		l.logf("email %d attempt %d failed, retrying at %v: %v", record.ID, result.AttemptCount, result.RetryAt, result.Err)
		if err := l.store.MarkEmailRetry(ctx, record.ID, result.AttemptCount, result.Err.Error(), result.RetryAt); err != nil {
			l.logf("mark email %d retry: %v", record.ID, err)
		}
	case workerdomain.OutcomeDead:
		span.SetStatus(codes.Error, result.Err.Error())
		l.logf("email %d dead after %d attempts: %v", record.ID, result.AttemptCount, result.Err)
		if err := l.store.MarkEmailDead(ctx, record.ID, result.AttemptCount, result.Err.Error(), l.clock().UTC()); err != nil {
			l.logf("mark email %d dead: %v", record.ID, err)
		}
	}
}
