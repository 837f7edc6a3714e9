package domain

import "time"

// Assignment is one solved giver-to-receiver pair within a group draw.
// ExcludedIDs snapshots the receiver's exclusion set at assignment time for
// audit. ViewedAt is set exactly once, on the giver's first read.
type Assignment struct {
	GroupID        string
	GiverUserID    string
	ReceiverUserID string
	ExcludedIDs    []string
	ViewedAt       *time.Time
	CreatedAt      time.Time
}

// ActivityKind labels one audit log entry.
type ActivityKind string

const (
	// ActivityDraw records a successful draw.
	ActivityDraw ActivityKind = "draw"
	// ActivityReset records a draw reset.
	ActivityReset ActivityKind = "reset"
)

// Activity is one audit record for a draw or reset.
type Activity struct {
	ID          string
	GroupID     string
	ActorUserID string
	Kind        ActivityKind
	CreatedAt   time.Time
}
