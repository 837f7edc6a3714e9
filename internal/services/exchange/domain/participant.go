// Package domain implements the gift-exchange draw lifecycle: participant
// membership, pairwise exclusion rules, the constrained assignment solver,
// and the draw state machine that ties them together.
package domain

import (
	"strings"
	"time"

	apperrors "github.com/giftring/giftring/internal/errors"
)

var (
	// ErrEmptyUserID indicates a missing member user ID.
	ErrEmptyUserID = apperrors.New(apperrors.CodeMemberEmptyUserID, "member user id is required")
	// ErrEmptyDisplayName indicates a missing member display name.
	ErrEmptyDisplayName = apperrors.New(apperrors.CodeMemberEmptyDisplayName, "member display name is required")
	// ErrInvalidRole indicates a missing or invalid member role.
	ErrInvalidRole = apperrors.New(apperrors.CodeMemberInvalidRole, "member role is required")
)

// Role describes a member's authority within a group.
type Role int

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = iota
	// RoleOwner indicates the group creator.
	RoleOwner
	// RoleAdmin indicates a member who can manage the group and its draw.
	RoleAdmin
	// RoleMember indicates a regular participant.
	RoleMember
)

// CanManageDraw reports whether the role may trigger or reset a draw.
func (r Role) CanManageDraw() bool {
	return r == RoleOwner || r == RoleAdmin
}

// RoleLabel returns the string label for a role.
func RoleLabel(role Role) string {
	switch role {
	case RoleOwner:
		return "OWNER"
	case RoleAdmin:
		return "ADMIN"
	case RoleMember:
		return "MEMBER"
	default:
		return "UNSPECIFIED"
	}
}

// RoleFromLabel converts a role label to a Role value.
func RoleFromLabel(label string) Role {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "OWNER":
		return RoleOwner
	case "ADMIN":
		return RoleAdmin
	case "MEMBER":
		return RoleMember
	default:
		return RoleUnspecified
	}
}

// Member is one group participant as seen at draw time. A member is
// immutable for the duration of a draw attempt; membership churn between
// operations is the store's concern.
type Member struct {
	GroupID     string
	UserID      string
	DisplayName string
	Email       string
	Locale      string
	Role        Role
	Active      bool
}

// NormalizeMember trims and validates member fields.
func NormalizeMember(member Member) (Member, error) {
	member.UserID = strings.TrimSpace(member.UserID)
	if member.UserID == "" {
		return Member{}, ErrEmptyUserID
	}
	member.DisplayName = strings.TrimSpace(member.DisplayName)
	if member.DisplayName == "" {
		return Member{}, ErrEmptyDisplayName
	}
	if member.Role == RoleUnspecified {
		return Member{}, ErrInvalidRole
	}
	member.Email = strings.TrimSpace(member.Email)
	member.Locale = strings.TrimSpace(member.Locale)
	return member, nil
}

// Group carries the group metadata the draw lifecycle needs.
type Group struct {
	ID          string
	Name        string
	OwnerUserID string
	URL         string
	Drawn       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
