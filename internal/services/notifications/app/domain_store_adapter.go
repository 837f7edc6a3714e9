// Package server adapts notifications persistence to the domain contract.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/giftring/giftring/internal/services/notifications/domain"
	"github.com/giftring/giftring/internal/services/notifications/storage"
)

// DomainStoreAdapter bridges the domain store contract onto the
// persistence records and translates error sentinels.
type DomainStoreAdapter struct {
	store storage.NotificationStore
}

// NewDomainStoreAdapter wraps a notification store for domain use.
func NewDomainStoreAdapter(store storage.NotificationStore) *DomainStoreAdapter {
	return &DomainStoreAdapter{store: store}
}

func (a *DomainStoreAdapter) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (domain.Notification, error) {
	if a == nil || a.store == nil {
		return domain.Notification{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
	if err != nil {
		return domain.Notification{}, mapStorageError(err)
	}
	return toDomainNotification(record), nil
}

func (a *DomainStoreAdapter) PutNotification(ctx context.Context, notification domain.Notification) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.PutNotification(ctx, toStorageNotification(notification)))
}

func (a *DomainStoreAdapter) ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (domain.NotificationPage, error) {
	if a == nil || a.store == nil {
		return domain.NotificationPage{}, domain.ErrStoreNotConfigured
	}
	page, err := a.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, pageToken)
	if err != nil {
		return domain.NotificationPage{}, mapStorageError(err)
	}
	result := domain.NotificationPage{
		Notifications: make([]domain.Notification, 0, len(page.Notifications)),
		NextPageToken: page.NextPageToken,
	}
	for _, record := range page.Notifications {
		result.Notifications = append(result.Notifications, toDomainNotification(record))
	}
	return result, nil
}

func (a *DomainStoreAdapter) MarkNotificationRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (domain.Notification, error) {
	if a == nil || a.store == nil {
		return domain.Notification{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.MarkNotificationRead(ctx, recipientUserID, notificationID, readAt)
	if err != nil {
		return domain.Notification{}, mapStorageError(err)
	}
	return toDomainNotification(record), nil
}

func toStorageNotification(notification domain.Notification) storage.NotificationRecord {
	return storage.NotificationRecord{
		ID:              notification.ID,
		RecipientUserID: notification.RecipientUserID,
		Topic:           notification.Topic,
		PayloadJSON:     notification.PayloadJSON,
		DedupeKey:       notification.DedupeKey,
		CreatedAt:       notification.CreatedAt,
		ReadAt:          notification.ReadAt,
	}
}

func toDomainNotification(record storage.NotificationRecord) domain.Notification {
	return domain.Notification{
		ID:              record.ID,
		RecipientUserID: record.RecipientUserID,
		Topic:           record.Topic,
		PayloadJSON:     record.PayloadJSON,
		DedupeKey:       record.DedupeKey,
		CreatedAt:       record.CreatedAt,
		ReadAt:          record.ReadAt,
	}
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict
	default:
		return err
	}
}

var _ domain.Store = (*DomainStoreAdapter)(nil)
