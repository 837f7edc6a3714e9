// Package storage defines the persistence records and store contracts for
// the exchange service.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write lost a concurrent draw-state transition
	// or violated a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// GroupRecord stores one gift-exchange group row.
type GroupRecord struct {
	ID          string
	Name        string
	OwnerUserID string
	URL         string
	Drawn       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemberRecord stores one group membership row.
type MemberRecord struct {
	GroupID     string
	UserID      string
	DisplayName string
	Email       string
	Locale      string
	Role        string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExclusionRecord stores one unordered exclusion pair.
type ExclusionRecord struct {
	GroupID         string
	UserAID         string
	UserBID         string
	CreatedByUserID string
	CreatedAt       time.Time
}

// AssignmentRecord stores one giver-to-receiver pair for a drawn group.
// ExcludedIDsJSON is the JSON-encoded audit snapshot of the receiver's
// exclusion set at draw time.
type AssignmentRecord struct {
	GroupID         string
	GiverUserID     string
	ReceiverUserID  string
	ExcludedIDsJSON string
	ViewedAt        *time.Time
	CreatedAt       time.Time
}

// ActivityRecord stores one audit log entry for a draw or reset.
type ActivityRecord struct {
	ID          string
	GroupID     string
	ActorUserID string
	Kind        string
	CreatedAt   time.Time
}

// GroupStore persists group, membership, and exclusion state.
type GroupStore interface {
	PutGroup(ctx context.Context, record GroupRecord) error
	GetGroup(ctx context.Context, groupID string) (GroupRecord, error)
	PutMember(ctx context.Context, record MemberRecord) error
	ListActiveMembers(ctx context.Context, groupID string) ([]MemberRecord, error)
	PutExclusion(ctx context.Context, record ExclusionRecord) error
	ListExclusions(ctx context.Context, groupID string) ([]ExclusionRecord, error)
}

// DrawStore persists draw lifecycle state. CreateDraw and ResetDraw are
// atomic: assignments, the drawn flag, and the activity entry commit or roll
// back together, and the drawn-flag update is a compare-and-set so exactly
// one concurrent caller wins each transition (the loser gets ErrConflict).
type DrawStore interface {
	CreateDraw(ctx context.Context, groupID string, assignments []AssignmentRecord, activity ActivityRecord) error
	ResetDraw(ctx context.Context, groupID string, activity ActivityRecord) error
	GetAssignmentByGiver(ctx context.Context, groupID, giverUserID string) (AssignmentRecord, error)
	ListAssignmentsByGroup(ctx context.Context, groupID string) ([]AssignmentRecord, error)
	// MarkAssignmentViewed sets viewed_at only when currently unset and
	// returns the stored record either way.
	MarkAssignmentViewed(ctx context.Context, groupID, giverUserID string, viewedAt time.Time) (AssignmentRecord, error)
	ListActivitiesByGroup(ctx context.Context, groupID string) ([]ActivityRecord, error)
}

// Store is the full exchange persistence surface.
type Store interface {
	GroupStore
	DrawStore
}
