// Package sqlite provides a SQLite-backed notifications storage
// implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/giftring/giftring/internal/platform/storage/sqlitemigrate"
	"github.com/giftring/giftring/internal/services/notifications/storage"
	"github.com/giftring/giftring/internal/services/notifications/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists notifications state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite notifications store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sqlite db is required")
	}
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetNotificationByRecipientAndDedupeKey returns one notification by its
// dedupe identity.
func (s *Store) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (storage.NotificationRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NotificationRecord{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	}
	if dedupeKey == "" {
		return storage.NotificationRecord{}, fmt.Errorf("dedupe key is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, recipient_user_id, topic, payload_json, dedupe_key, created_at, read_at
		 FROM notifications
		 WHERE recipient_user_id = ? AND dedupe_key = ?`,
		recipientUserID,
		dedupeKey,
	)
	record, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("get notification by dedupe key: %w", err)
	}
	return record, nil
}

// PutNotification inserts one notification row. A duplicate non-empty
// dedupe key for the same recipient returns storage.ErrConflict.
func (s *Store) PutNotification(ctx context.Context, record storage.NotificationRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	notificationID := strings.TrimSpace(record.ID)
	recipientUserID := strings.TrimSpace(record.RecipientUserID)
	if notificationID == "" {
		return fmt.Errorf("notification id is required")
	}
	if recipientUserID == "" {
		return fmt.Errorf("recipient user id is required")
	}

	var readAt any
	if record.ReadAt != nil {
		readAt = toMillis(*record.ReadAt)
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO notifications (id, recipient_user_id, topic, payload_json, dedupe_key, created_at, read_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		notificationID,
		recipientUserID,
		record.Topic,
		record.PayloadJSON,
		strings.TrimSpace(record.DedupeKey),
		toMillis(record.CreatedAt),
		readAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put notification: %w", err)
	}
	return nil
}

// ListNotificationsByRecipient returns one inbox page, newest ids first.
func (s *Store) ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (storage.NotificationPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NotificationPage{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return storage.NotificationPage{}, fmt.Errorf("recipient user id is required")
	}
	if pageSize <= 0 {
		return storage.NotificationPage{}, fmt.Errorf("page size must be greater than zero")
	}

	page := storage.NotificationPage{
		Notifications: make([]storage.NotificationRecord, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	var (
		rows *sql.Rows
		err  error
	)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, recipient_user_id, topic, payload_json, dedupe_key, created_at, read_at
			 FROM notifications
			 WHERE recipient_user_id = ?
			 ORDER BY id DESC
			 LIMIT ?`,
			recipientUserID,
			pageSize+1,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, recipient_user_id, topic, payload_json, dedupe_key, created_at, read_at
			 FROM notifications
			 WHERE recipient_user_id = ? AND id < ?
			 ORDER BY id DESC
			 LIMIT ?`,
			recipientUserID,
			pageToken,
			pageSize+1,
		)
	}
	if err != nil {
		return storage.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanNotification(rows.Scan)
		if err != nil {
			return storage.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
		}
		page.Notifications = append(page.Notifications, record)
	}
	if err := rows.Err(); err != nil {
		return storage.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	if len(page.Notifications) > pageSize {
		page.NextPageToken = page.Notifications[pageSize-1].ID
		page.Notifications = page.Notifications[:pageSize]
	}
	return page, nil
}

// MarkNotificationRead sets read_at only when it is currently NULL and
// returns the stored row. A second call keeps the original timestamp.
func (s *Store) MarkNotificationRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (storage.NotificationRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NotificationRecord{}, err
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	}
	if notificationID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("notification id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notifications SET read_at = ?
		 WHERE id = ? AND recipient_user_id = ? AND read_at IS NULL`,
		toMillis(readAt),
		notificationID,
		recipientUserID,
	)
	if err != nil {
		return storage.NotificationRecord{}, fmt.Errorf("mark notification read: %w", err)
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, recipient_user_id, topic, payload_json, dedupe_key, created_at, read_at
		 FROM notifications
		 WHERE id = ? AND recipient_user_id = ?`,
		notificationID,
		recipientUserID,
	)
	record, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("mark notification read: %w", err)
	}
	return record, nil
}

func scanNotification(scan func(dest ...any) error) (storage.NotificationRecord, error) {
	var (
		record    storage.NotificationRecord
		createdAt int64
		readAt    sql.NullInt64
	)
	if err := scan(
		&record.ID,
		&record.RecipientUserID,
		&record.Topic,
		&record.PayloadJSON,
		&record.DedupeKey,
		&createdAt,
		&readAt,
	); err != nil {
		return storage.NotificationRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	if readAt.Valid {
		value := fromMillis(readAt.Int64)
		record.ReadAt = &value
	}
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.NotificationStore = (*Store)(nil)
