// Package domain implements the in-app notification inbox. Producers create
// notification intents keyed by a dedupe key so redelivery is idempotent;
// recipients page through their inbox and acknowledge items.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/giftring/giftring/internal/errors"
	"github.com/giftring/giftring/internal/platform/id"
)

var (
	// ErrNotFound indicates a notification record was not found.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "notification not found")
	// ErrConflict indicates a write conflicted with a uniqueness constraint.
	ErrConflict = apperrors.New(apperrors.CodeConflict, "notification conflict")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("notification store is not configured")
	// ErrRecipientRequired indicates recipient identity is required.
	ErrRecipientRequired = apperrors.New(apperrors.CodeNotificationEmptyRecipient, "recipient user id is required")
	// ErrTopicRequired indicates a topic is required.
	ErrTopicRequired = apperrors.New(apperrors.CodeNotificationEmptyTopic, "notification topic is required")
	// ErrNotificationIDRequired indicates a notification id is required.
	ErrNotificationIDRequired = errors.New("notification id is required")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Notification is one recipient inbox item.
type Notification struct {
	ID              string
	RecipientUserID string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage is one page of a recipient inbox, newest first.
type NotificationPage struct {
	Notifications []Notification
	NextPageToken string
}

// CreateIntentInput describes one producer notification request.
type CreateIntentInput struct {
	RecipientUserID string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
}

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// MarkReadInput identifies one recipient notification to acknowledge.
type MarkReadInput struct {
	RecipientUserID string
	NotificationID  string
}

// Store is the persistence boundary for notification lifecycle behavior.
type Store interface {
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (Notification, error)
	PutNotification(ctx context.Context, notification Notification) error
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (NotificationPage, error)
	MarkNotificationRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (Notification, error)
}

// Service orchestrates recipient inbox lifecycle behavior.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs notification use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
	}
}

// CreateIntent stores one notification and de-duplicates by
// recipient+dedupe key, returning the existing item when the same intent
// arrives twice.
func (s *Service) CreateIntent(ctx context.Context, input CreateIntentInput) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientRequired
	}
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return Notification{}, ErrTopicRequired
	}
	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if dedupeKey != "" {
		existing, err := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Notification{}, err
		}
	}

	notificationID, err := s.newID()
	if err != nil {
		return Notification{}, err
	}
	notification := Notification{
		ID:              notificationID,
		RecipientUserID: recipientUserID,
		Topic:           topic,
		PayloadJSON:     strings.TrimSpace(input.PayloadJSON),
		DedupeKey:       dedupeKey,
		CreatedAt:       s.nowUTC(),
	}
	if err := s.store.PutNotification(ctx, notification); err != nil {
		// Two producers raced the same dedupe key; the winner's row is the
		// answer for both.
		if dedupeKey != "" && errors.Is(err, ErrConflict) {
			existing, lookupErr := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
			if lookupErr == nil {
				return existing, nil
			}
			return Notification{}, err
		}
		return Notification{}, err
	}
	return notification, nil
}

// ListInbox lists recipient inbox notifications newest first.
func (s *Service) ListInbox(ctx context.Context, input ListInboxInput) (NotificationPage, error) {
	if s == nil || s.store == nil {
		return NotificationPage{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return NotificationPage{}, ErrRecipientRequired
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return s.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
}

// MarkRead marks one recipient notification as read.
func (s *Service) MarkRead(ctx context.Context, input MarkReadInput) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientRequired
	}
	notificationID := strings.TrimSpace(input.NotificationID)
	if notificationID == "" {
		return Notification{}, ErrNotificationIDRequired
	}
	return s.store.MarkNotificationRead(ctx, recipientUserID, notificationID, s.nowUTC())
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
