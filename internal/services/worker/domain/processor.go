// Package domain decides the fate of queued emails: send, retry later, or
// park permanently. The actual transport is an injected Sender.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSenderNotConfigured indicates the processor is missing a transport.
var ErrSenderNotConfigured = errors.New("email sender is not configured")

// Email is one send attempt handed to the transport.
type Email struct {
	ID              int64
	RecipientUserID string
	Address         string
	Locale          string
	Subject         string
	Body            string
	AttemptCount    int32
}

// Sender delivers one email. Implementations return Permanent errors for
// failures that will never succeed on retry, such as a rejected address.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks a send failure as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var perm permanentError
	return errors.As(err, &perm)
}

// RetryPolicy bounds send retries. Delays double per attempt from Backoff
// up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int32
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is the queue-wide retry policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	Backoff:     time.Minute,
	MaxBackoff:  time.Hour,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultRetryPolicy.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultRetryPolicy.MaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// NextDelay returns the wait before the given attempt number retries.
func (p RetryPolicy) NextDelay(attempt int32) time.Duration {
	p = p.normalized()
	delay := p.Backoff
	for i := int32(1); i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Outcome is the fate of one processed email.
type Outcome int

const (
	// OutcomeSent means the transport accepted the email.
	OutcomeSent Outcome = iota
	// OutcomeRetry means the attempt failed and the email should requeue.
	OutcomeRetry
	// OutcomeDead means the email will never send and must be parked.
	OutcomeDead
)

// Result describes one processing decision.
type Result struct {
	Outcome      Outcome
	AttemptCount int32
	RetryAt      time.Time
	Err          error
}

// Processor applies the retry policy to send attempts.
type Processor struct {
	sender Sender
	policy RetryPolicy
	clock  func() time.Time
}

// NewProcessor constructs an email processor.
func NewProcessor(sender Sender, policy RetryPolicy, clock func() time.Time) *Processor {
	if clock == nil {
		clock = time.Now
	}
	return &Processor{
		sender: sender,
		policy: policy.normalized(),
		clock:  clock,
	}
}

// Process attempts one send and decides what happens to the email next.
// Permanent failures and exhausted attempts park the email; everything else
// schedules a retry with exponential backoff.
func (p *Processor) Process(ctx context.Context, email Email) Result {
	attempt := email.AttemptCount + 1
	if p == nil || p.sender == nil {
		return Result{Outcome: OutcomeRetry, AttemptCount: attempt, RetryAt: time.Now().UTC(), Err: ErrSenderNotConfigured}
	}

	err := p.sender.Send(ctx, email)
	if err == nil {
		return Result{Outcome: OutcomeSent, AttemptCount: attempt}
	}
	if IsPermanent(err) {
		return Result{Outcome: OutcomeDead, AttemptCount: attempt, Err: err}
	}
	if attempt >= p.policy.MaxAttempts {
		return Result{Outcome: OutcomeDead, AttemptCount: attempt, Err: err}
	}
	retryAt := p.clock().UTC().Add(p.policy.NextDelay(attempt))
	return Result{Outcome: OutcomeRetry, AttemptCount: attempt, RetryAt: retryAt, Err: err}
}
