// Package sqlite provides a SQLite-backed email queue implementation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/giftring/giftring/internal/platform/storage/sqlitemigrate"
	"github.com/giftring/giftring/internal/services/worker/storage"
	"github.com/giftring/giftring/internal/services/worker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists the email queue in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite worker store and applies embedded migrations.
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

// EnqueueEmail inserts one pending email. Duplicate non-empty dedupe keys
// are silently ignored so enqueueing is idempotent.
func (s *Store) EnqueueEmail(ctx context.Context, record storage.EmailRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	address := strings.TrimSpace(record.Address)
	if address == "" {
		return fmt.Errorf("email address is required")
	}

	nextAttemptAt := record.NextAttemptAt
	if nextAttemptAt.IsZero() {
		nextAttemptAt = record.CreatedAt
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO emails (recipient_user_id, address, locale, subject, body, dedupe_key, status, attempt_count, last_error, next_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)
		 ON CONFLICT(dedupe_key) WHERE dedupe_key != '' DO NOTHING`,
		record.RecipientUserID,
		address,
		record.Locale,
		record.Subject,
		record.Body,
		strings.TrimSpace(record.DedupeKey),
		storage.EmailStatusPending,
		toMillis(nextAttemptAt),
		toMillis(record.CreatedAt),
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// ClaimDueEmails leases up to limit due pending emails in one transaction.
func (s *Store) ClaimDueEmails(ctx context.Context, now time.Time, leaseUntil time.Time, limit int) ([]storage.EmailRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT id FROM emails
		 WHERE status = ? AND next_attempt_at <= ?
		   AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		storage.EmailStatusPending,
		toMillis(now),
		toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due emails: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("select due emails: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("select due emails: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	claimed := make([]storage.EmailRecord, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE emails SET lease_expires_at = ?, updated_at = ? WHERE id = ?`,
			toMillis(leaseUntil),
			toMillis(now),
			id,
		); err != nil {
			return nil, fmt.Errorf("lease email %d: %w", id, err)
		}
		row := tx.QueryRowContext(
			ctx,
			`SELECT id, recipient_user_id, address, locale, subject, body, dedupe_key, status, attempt_count, last_error, next_attempt_at, lease_expires_at, created_at, updated_at, sent_at
			 FROM emails WHERE id = ?`,
			id,
		)
		record, err := scanEmail(row.Scan)
		if err != nil {
			return nil, fmt.Errorf("read claimed email %d: %w", id, err)
		}
		claimed = append(claimed, record)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// MarkEmailSent finalizes one claimed email.
func (s *Store) MarkEmailSent(ctx context.Context, id int64, sentAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE emails
		 SET status = ?, sent_at = ?, lease_expires_at = NULL, last_error = '', updated_at = ?
		 WHERE id = ?`,
		storage.EmailStatusSent,
		toMillis(sentAt),
		toMillis(sentAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return requireAffected(result, "mark email sent")
}

// MarkEmailRetry releases one claimed email for a later attempt.
func (s *Store) MarkEmailRetry(ctx context.Context, id int64, attemptCount int32, lastError string, nextAttemptAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE emails
		 SET attempt_count = ?, last_error = ?, next_attempt_at = ?, lease_expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		attemptCount,
		lastError,
		toMillis(nextAttemptAt),
		toMillis(nextAttemptAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark email retry: %w", err)
	}
	return requireAffected(result, "mark email retry")
}

// MarkEmailDead parks one claimed email permanently.
func (s *Store) MarkEmailDead(ctx context.Context, id int64, attemptCount int32, lastError string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE emails
		 SET status = ?, attempt_count = ?, last_error = ?, lease_expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		storage.EmailStatusDead,
		attemptCount,
		lastError,
		toMillis(at),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark email dead: %w", err)
	}
	return requireAffected(result, "mark email dead")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanEmail(scan func(dest ...any) error) (storage.EmailRecord, error) {
	var (
		record         storage.EmailRecord
		nextAttemptAt  int64
		leaseExpiresAt sql.NullInt64
		createdAt      int64
		updatedAt      int64
		sentAt         sql.NullInt64
	)
	if err := scan(
		&record.ID,
		&record.RecipientUserID,
		&record.Address,
		&record.Locale,
		&record.Subject,
		&record.Body,
		&record.DedupeKey,
		&record.Status,
		&record.AttemptCount,
		&record.LastError,
		&nextAttemptAt,
		&leaseExpiresAt,
		&createdAt,
		&updatedAt,
		&sentAt,
	); err != nil {
		return storage.EmailRecord{}, err
	}
	record.NextAttemptAt = fromMillis(nextAttemptAt)
	if leaseExpiresAt.Valid {
		value := fromMillis(leaseExpiresAt.Int64)
		record.LeaseExpiresAt = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if sentAt.Valid {
		value := fromMillis(sentAt.Int64)
		record.SentAt = &value
	}
	return record, nil
}

var _ storage.EmailStore = (*Store)(nil)
