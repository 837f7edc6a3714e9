// Package storage defines the persistence records and store contract for
// the notifications service.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write violated a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// NotificationRecord stores one recipient inbox item.
type NotificationRecord struct {
	ID              string
	RecipientUserID string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage is one stored inbox page.
type NotificationPage struct {
	Notifications []NotificationRecord
	NextPageToken string
}

// NotificationStore persists recipient inbox state. PutNotification returns
// ErrConflict when a non-empty dedupe key already exists for the recipient.
type NotificationStore interface {
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (NotificationRecord, error)
	PutNotification(ctx context.Context, record NotificationRecord) error
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (NotificationPage, error)
	// MarkNotificationRead sets read_at only when unset and returns the
	// stored record either way.
	MarkNotificationRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (NotificationRecord, error)
}
