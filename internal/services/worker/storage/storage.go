// Package storage defines the durable email queue records and store
// contract for the delivery worker.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
)

// Email queue statuses.
const (
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusDead    = "dead"
)

// EmailRecord is one durable queued email.
type EmailRecord struct {
	ID              int64
	RecipientUserID string
	Address         string
	Locale          string
	Subject         string
	Body            string
	DedupeKey       string
	Status          string
	AttemptCount    int32
	LastError       string
	NextAttemptAt   time.Time
	LeaseExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SentAt          *time.Time
}

// EmailStore persists the outbound email queue.
type EmailStore interface {
	// EnqueueEmail inserts one pending email. A duplicate non-empty dedupe
	// key is a no-op so producers can safely retry.
	EnqueueEmail(ctx context.Context, record EmailRecord) error
	// ClaimDueEmails leases up to limit pending emails whose next attempt
	// is due and whose lease has lapsed. Claimed rows are invisible to
	// other claimers until leaseUntil.
	ClaimDueEmails(ctx context.Context, now time.Time, leaseUntil time.Time, limit int) ([]EmailRecord, error)
	// MarkEmailSent finalizes one claimed email.
	MarkEmailSent(ctx context.Context, id int64, sentAt time.Time) error
	// MarkEmailRetry releases one claimed email back to the queue with an
	// updated attempt count and retry time.
	MarkEmailRetry(ctx context.Context, id int64, attemptCount int32, lastError string, nextAttemptAt time.Time) error
	// MarkEmailDead parks one claimed email permanently.
	MarkEmailDead(ctx context.Context, id int64, attemptCount int32, lastError string, at time.Time) error
}
