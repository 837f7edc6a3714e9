// Package sqlite provides a SQLite-backed exchange storage implementation.
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
	"github.com/giftring/giftring/internal/services/exchange/storage"
	"github.com/giftring/giftring/internal/services/exchange/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists exchange state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite exchange store and applies embedded migrations.
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

// PutGroup upserts one group row.
func (s *Store) PutGroup(ctx context.Context, record storage.GroupRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	groupID := strings.TrimSpace(record.ID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if strings.TrimSpace(record.OwnerUserID) == "" {
		return fmt.Errorf("owner user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO groups (id, name, owner_user_id, url, drawn, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   owner_user_id = excluded.owner_user_id,
		   url = excluded.url,
		   updated_at = excluded.updated_at`,
		groupID,
		record.Name,
		strings.TrimSpace(record.OwnerUserID),
		record.URL,
		boolToInt(record.Drawn),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put group: %w", err)
	}
	return nil
}

// GetGroup returns one group row.
func (s *Store) GetGroup(ctx context.Context, groupID string) (storage.GroupRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.GroupRecord{}, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return storage.GroupRecord{}, fmt.Errorf("group id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, owner_user_id, url, drawn, created_at, updated_at
		 FROM groups
		 WHERE id = ?`,
		groupID,
	)
	var (
		record    storage.GroupRecord
		drawn     int64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.OwnerUserID,
		&record.URL,
		&drawn,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.GroupRecord{}, storage.ErrNotFound
		}
		return storage.GroupRecord{}, fmt.Errorf("get group: %w", err)
	}
	record.Drawn = drawn != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutMember upserts one membership row.
func (s *Store) PutMember(ctx context.Context, record storage.MemberRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	groupID := strings.TrimSpace(record.GroupID)
	userID := strings.TrimSpace(record.UserID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO members (group_id, user_id, display_name, email, locale, role, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   email = excluded.email,
		   locale = excluded.locale,
		   role = excluded.role,
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		groupID,
		userID,
		record.DisplayName,
		record.Email,
		record.Locale,
		record.Role,
		boolToInt(record.Active),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	return nil
}

// ListActiveMembers returns the active membership rows for a group ordered
// by user id.
func (s *Store) ListActiveMembers(ctx context.Context, groupID string) ([]storage.MemberRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT group_id, user_id, display_name, email, locale, role, active, created_at, updated_at
		 FROM members
		 WHERE group_id = ? AND active = 1
		 ORDER BY user_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active members: %w", err)
	}
	defer rows.Close()

	var records []storage.MemberRecord
	for rows.Next() {
		var (
			record    storage.MemberRecord
			active    int64
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(
			&record.GroupID,
			&record.UserID,
			&record.DisplayName,
			&record.Email,
			&record.Locale,
			&record.Role,
			&active,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("list active members: %w", err)
		}
		record.Active = active != 0
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active members: %w", err)
	}
	return records, nil
}

// PutExclusion upserts one exclusion pair row. Pairs are stored as given;
// symmetry is applied when the exclusion graph is built.
func (s *Store) PutExclusion(ctx context.Context, record storage.ExclusionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	groupID := strings.TrimSpace(record.GroupID)
	userAID := strings.TrimSpace(record.UserAID)
	userBID := strings.TrimSpace(record.UserBID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if userAID == "" || userBID == "" {
		return fmt.Errorf("both exclusion user ids are required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO exclusions (group_id, user_a_id, user_b_id, created_by_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(group_id, user_a_id, user_b_id) DO NOTHING`,
		groupID,
		userAID,
		userBID,
		record.CreatedByUserID,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put exclusion: %w", err)
	}
	return nil
}

// ListExclusions returns all exclusion pair rows for a group.
func (s *Store) ListExclusions(ctx context.Context, groupID string) ([]storage.ExclusionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT group_id, user_a_id, user_b_id, created_by_user_id, created_at
		 FROM exclusions
		 WHERE group_id = ?
		 ORDER BY user_a_id ASC, user_b_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	defer rows.Close()

	var records []storage.ExclusionRecord
	for rows.Next() {
		var (
			record    storage.ExclusionRecord
			createdAt int64
		)
		if err := rows.Scan(
			&record.GroupID,
			&record.UserAID,
			&record.UserBID,
			&record.CreatedByUserID,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list exclusions: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	return records, nil
}

// CreateDraw flips the drawn flag and inserts the assignments and the audit
// entry in one transaction. The flag update is conditional on the group not
// being drawn yet, so a concurrent losing draw gets storage.ErrConflict and
// nothing is persisted for it.
func (s *Store) CreateDraw(ctx context.Context, groupID string, assignments []storage.AssignmentRecord, activity storage.ActivityRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if len(assignments) == 0 {
		return fmt.Errorf("at least one assignment is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create draw: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(
		ctx,
		`UPDATE groups SET drawn = 1, updated_at = ? WHERE id = ? AND drawn = 0`,
		toMillis(activity.CreatedAt),
		groupID,
	)
	if err != nil {
		return fmt.Errorf("flip drawn flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flip drawn flag: %w", err)
	}
	if affected == 0 {
		var exists int64
		row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups WHERE id = ?`, groupID)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("flip drawn flag: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	for _, assignment := range assignments {
		excludedJSON := assignment.ExcludedIDsJSON
		if strings.TrimSpace(excludedJSON) == "" {
			excludedJSON = "[]"
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO assignments (group_id, giver_user_id, receiver_user_id, excluded_ids_json, viewed_at, created_at)
			 VALUES (?, ?, ?, ?, NULL, ?)`,
			groupID,
			strings.TrimSpace(assignment.GiverUserID),
			strings.TrimSpace(assignment.ReceiverUserID),
			excludedJSON,
			toMillis(assignment.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO activities (id, group_id, actor_user_id, kind, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(activity.ID),
		groupID,
		activity.ActorUserID,
		activity.Kind,
		toMillis(activity.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert draw activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create draw: %w", err)
	}
	return nil
}

// ResetDraw clears the drawn flag, deletes all assignments, and inserts the
// audit entry in one transaction. The flag update is conditional on the
// group being drawn, so resetting an undrawn group gets storage.ErrConflict.
func (s *Store) ResetDraw(ctx context.Context, groupID string, activity storage.ActivityRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset draw: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(
		ctx,
		`UPDATE groups SET drawn = 0, updated_at = ? WHERE id = ? AND drawn = 1`,
		toMillis(activity.CreatedAt),
		groupID,
	)
	if err != nil {
		return fmt.Errorf("clear drawn flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear drawn flag: %w", err)
	}
	if affected == 0 {
		var exists int64
		row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups WHERE id = ?`, groupID)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("clear drawn flag: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM assignments WHERE group_id = ?`,
		groupID,
	); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO activities (id, group_id, actor_user_id, kind, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(activity.ID),
		groupID,
		activity.ActorUserID,
		activity.Kind,
		toMillis(activity.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert reset activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset draw: %w", err)
	}
	return nil
}

// GetAssignmentByGiver returns the assignment row for one giver.
func (s *Store) GetAssignmentByGiver(ctx context.Context, groupID, giverUserID string) (storage.AssignmentRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AssignmentRecord{}, err
	}
	groupID = strings.TrimSpace(groupID)
	giverUserID = strings.TrimSpace(giverUserID)
	if groupID == "" {
		return storage.AssignmentRecord{}, fmt.Errorf("group id is required")
	}
	if giverUserID == "" {
		return storage.AssignmentRecord{}, fmt.Errorf("giver user id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT group_id, giver_user_id, receiver_user_id, excluded_ids_json, viewed_at, created_at
		 FROM assignments
		 WHERE group_id = ? AND giver_user_id = ?`,
		groupID,
		giverUserID,
	)
	record, err := scanAssignment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AssignmentRecord{}, storage.ErrNotFound
		}
		return storage.AssignmentRecord{}, fmt.Errorf("get assignment: %w", err)
	}
	return record, nil
}

// ListAssignmentsByGroup returns all assignment rows for a group ordered by
// giver user id.
func (s *Store) ListAssignmentsByGroup(ctx context.Context, groupID string) ([]storage.AssignmentRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT group_id, giver_user_id, receiver_user_id, excluded_ids_json, viewed_at, created_at
		 FROM assignments
		 WHERE group_id = ?
		 ORDER BY giver_user_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var records []storage.AssignmentRecord
	for rows.Next() {
		record, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return records, nil
}

// MarkAssignmentViewed sets viewed_at only when it is currently NULL and
// returns the stored row. A second call keeps the original timestamp.
func (s *Store) MarkAssignmentViewed(ctx context.Context, groupID, giverUserID string, viewedAt time.Time) (storage.AssignmentRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AssignmentRecord{}, err
	}
	groupID = strings.TrimSpace(groupID)
	giverUserID = strings.TrimSpace(giverUserID)
	if groupID == "" {
		return storage.AssignmentRecord{}, fmt.Errorf("group id is required")
	}
	if giverUserID == "" {
		return storage.AssignmentRecord{}, fmt.Errorf("giver user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE assignments SET viewed_at = ?
		 WHERE group_id = ? AND giver_user_id = ? AND viewed_at IS NULL`,
		toMillis(viewedAt),
		groupID,
		giverUserID,
	)
	if err != nil {
		return storage.AssignmentRecord{}, fmt.Errorf("mark assignment viewed: %w", err)
	}
	return s.GetAssignmentByGiver(ctx, groupID, giverUserID)
}

// ListActivitiesByGroup returns the audit log for a group in insertion
// order.
func (s *Store) ListActivitiesByGroup(ctx context.Context, groupID string) ([]storage.ActivityRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, group_id, actor_user_id, kind, created_at
		 FROM activities
		 WHERE group_id = ?
		 ORDER BY created_at ASC, id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var records []storage.ActivityRecord
	for rows.Next() {
		var (
			record    storage.ActivityRecord
			createdAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.GroupID,
			&record.ActorUserID,
			&record.Kind,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return records, nil
}

func scanAssignment(scan func(dest ...any) error) (storage.AssignmentRecord, error) {
	var (
		record    storage.AssignmentRecord
		viewedAt  sql.NullInt64
		createdAt int64
	)
	if err := scan(
		&record.GroupID,
		&record.GiverUserID,
		&record.ReceiverUserID,
		&record.ExcludedIDsJSON,
		&viewedAt,
		&createdAt,
	); err != nil {
		return storage.AssignmentRecord{}, err
	}
	if viewedAt.Valid {
		value := fromMillis(viewedAt.Int64)
		record.ViewedAt = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

var _ storage.Store = (*Store)(nil)
