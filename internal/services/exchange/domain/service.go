package domain

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/giftring/giftring/internal/errors"
	"github.com/giftring/giftring/internal/platform/id"
	"github.com/giftring/giftring/internal/platform/random"
)

// MinParticipants is the smallest group size a draw accepts. Below three
// participants rejection sampling degrades to certain or near-certain
// failure (no derangement exists at one; two mutually excluded participants
// can never pair).
const MinParticipants = 3

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("exchange store is not configured")
	// ErrEmptyGroupID indicates a missing group ID.
	ErrEmptyGroupID = apperrors.New(apperrors.CodeExchangeEmptyGroupID, "group id is required")
	// ErrEmptyRequesterID indicates a missing requester ID.
	ErrEmptyRequesterID = apperrors.New(apperrors.CodeExchangeEmptyRequesterID, "requester id is required")
	// ErrNotAuthorized indicates the requester is neither the group owner nor an admin.
	ErrNotAuthorized = apperrors.New(apperrors.CodeExchangeNotAuthorized, "requester is not the group owner or an admin")
	// ErrNotMember indicates the requester has no active membership in the group.
	ErrNotMember = apperrors.New(apperrors.CodeExchangeNotMember, "requester is not an active group member")
	// ErrAlreadyDrawn indicates the group draw has already happened.
	ErrAlreadyDrawn = apperrors.New(apperrors.CodeExchangeAlreadyDrawn, "group is already drawn")
	// ErrNoDrawToReset indicates the group has no draw to reset.
	ErrNoDrawToReset = apperrors.New(apperrors.CodeExchangeNoDrawToReset, "group has no draw to reset")
	// ErrGroupNotFound indicates the group does not exist.
	ErrGroupNotFound = apperrors.New(apperrors.CodeNotFound, "group not found")
	// ErrAssignmentNotFound indicates no assignment exists for the giver.
	ErrAssignmentNotFound = apperrors.New(apperrors.CodeNotFound, "assignment not found")
	// ErrConflict indicates a write lost a concurrent state transition.
	ErrConflict = apperrors.New(apperrors.CodeConflict, "draw state changed concurrently")
)

// DrawSet is the atomic unit of a successful draw: the full assignment set,
// the drawn-state flip, and the audit entry. Stores must persist it
// all-or-nothing and fail with ErrConflict when the group is already drawn.
type DrawSet struct {
	GroupID     string
	Assignments []Assignment
	Activity    Activity
}

// ResetSet is the atomic unit of a reset: all assignments deleted, state
// flipped back, audit entry appended. Stores fail with ErrConflict when the
// group is not drawn.
type ResetSet struct {
	GroupID  string
	Activity Activity
}

// Store is the persistence boundary for the draw lifecycle. The store owns
// transactional isolation: concurrent draws must be serialized so that at
// most one observes the undrawn state and wins the flip.
type Store interface {
	GetGroup(ctx context.Context, groupID string) (Group, error)
	ListActiveMembers(ctx context.Context, groupID string) ([]Member, error)
	ListExclusions(ctx context.Context, groupID string) ([]ExclusionRule, error)
	CreateDraw(ctx context.Context, set DrawSet) error
	ResetDraw(ctx context.Context, set ResetSet) error
	GetAssignmentByGiver(ctx context.Context, groupID, giverUserID string) (Assignment, error)
	// MarkAssignmentViewed sets the viewed timestamp only if unset and
	// returns the stored assignment either way, so the first recorded
	// timestamp survives later reads.
	MarkAssignmentViewed(ctx context.Context, groupID, giverUserID string, viewedAt time.Time) (Assignment, error)
}

// DrawDispatcher fans out post-draw deliveries. Dispatch outcomes are
// reported out of band; implementations must isolate per-recipient failures
// and can never fail the draw.
type DrawDispatcher interface {
	DispatchDraw(ctx context.Context, group Group, members []Member, assignments []Assignment)
}

// Service orchestrates the draw lifecycle state machine.
type Service struct {
	store       Store
	dispatcher  DrawDispatcher
	clock       func() time.Time
	newID       func() (string, error)
	newSeed     func() (int64, error)
	maxAttempts int
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithDispatcher wires post-draw delivery fan-out.
func WithDispatcher(dispatcher DrawDispatcher) ServiceOption {
	return func(s *Service) { s.dispatcher = dispatcher }
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithIDGenerator injects an ID generator for tests.
func WithIDGenerator(newID func() (string, error)) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

// WithSeedSource injects the solver seed source for tests.
func WithSeedSource(newSeed func() (int64, error)) ServiceOption {
	return func(s *Service) { s.newSeed = newSeed }
}

// WithMaxAttempts overrides the solver attempt budget.
func WithMaxAttempts(maxAttempts int) ServiceOption {
	return func(s *Service) { s.maxAttempts = maxAttempts }
}

// NewService constructs the draw lifecycle use-cases.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		clock:       time.Now,
		newID:       id.NewID,
		newSeed:     random.NewSeed,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DrawInput identifies one draw request.
type DrawInput struct {
	GroupID     string
	RequesterID string
}

// DrawResult reports one successful draw.
type DrawResult struct {
	Group       Group
	Assignments []Assignment
}

// Draw runs the full draw: precondition checks, solve, atomic persistence,
// then delivery fan-out. Delivery failures never roll back the draw.
func (s *Service) Draw(ctx context.Context, input DrawInput) (DrawResult, error) {
	if s == nil || s.store == nil {
		return DrawResult{}, ErrStoreNotConfigured
	}
	groupID, requesterID, err := normalizeRequest(input.GroupID, input.RequesterID)
	if err != nil {
		return DrawResult{}, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return DrawResult{}, err
	}
	members, err := s.store.ListActiveMembers(ctx, groupID)
	if err != nil {
		return DrawResult{}, err
	}
	if !canManageDraw(group, members, requesterID) {
		return DrawResult{}, ErrNotAuthorized
	}
	if group.Drawn {
		return DrawResult{}, ErrAlreadyDrawn
	}
	if len(members) < MinParticipants {
		return DrawResult{}, apperrors.WithMetadata(
			apperrors.CodeExchangeTooFewParticipants,
			"too few active participants for a draw",
			map[string]string{
				"Minimum": strconv.Itoa(MinParticipants),
				"Count":   strconv.Itoa(len(members)),
			},
		)
	}

	rules, err := s.store.ListExclusions(ctx, groupID)
	if err != nil {
		return DrawResult{}, err
	}
	graph := BuildGraph(rules)

	seed, err := s.newSeed()
	if err != nil {
		return DrawResult{}, apperrors.Wrap(apperrors.CodeSeedUnavailable, "generate draw seed", err)
	}
	participantIDs := make([]string, 0, len(members))
	for _, member := range members {
		participantIDs = append(participantIDs, member.UserID)
	}
	pairing, err := Solve(participantIDs, graph, SolverConfig{MaxAttempts: s.maxAttempts, Seed: seed})
	if err != nil {
		return DrawResult{}, err
	}

	now := s.clock().UTC()
	assignments := make([]Assignment, 0, len(pairing))
	for _, giverID := range sortedGivers(pairing) {
		receiverID := pairing[giverID]
		assignments = append(assignments, Assignment{
			GroupID:        groupID,
			GiverUserID:    giverID,
			ReceiverUserID: receiverID,
			ExcludedIDs:    graph.ExcludedIDs(receiverID),
			CreatedAt:      now,
		})
	}

	activityID, err := s.newID()
	if err != nil {
		return DrawResult{}, err
	}
	set := DrawSet{
		GroupID:     groupID,
		Assignments: assignments,
		Activity: Activity{
			ID:          activityID,
			GroupID:     groupID,
			ActorUserID: requesterID,
			Kind:        ActivityDraw,
			CreatedAt:   now,
		},
	}
	if err := s.store.CreateDraw(ctx, set); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the flip to a concurrent draw.
			return DrawResult{}, ErrAlreadyDrawn
		}
		return DrawResult{}, err
	}

	group.Drawn = true
	group.UpdatedAt = now
	if s.dispatcher != nil {
		s.dispatcher.DispatchDraw(ctx, group, members, assignments)
	}
	return DrawResult{Group: group, Assignments: assignments}, nil
}

// ResetInput identifies one reset request.
type ResetInput struct {
	GroupID     string
	RequesterID string
}

// Reset atomically deletes all assignments, flips the group back to the
// undrawn state, and appends the audit entry. A second reset fails cleanly
// with ErrNoDrawToReset.
func (s *Service) Reset(ctx context.Context, input ResetInput) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	groupID, requesterID, err := normalizeRequest(input.GroupID, input.RequesterID)
	if err != nil {
		return err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	members, err := s.store.ListActiveMembers(ctx, groupID)
	if err != nil {
		return err
	}
	if !canManageDraw(group, members, requesterID) {
		return ErrNotAuthorized
	}
	if !group.Drawn {
		return ErrNoDrawToReset
	}

	activityID, err := s.newID()
	if err != nil {
		return err
	}
	set := ResetSet{
		GroupID: groupID,
		Activity: Activity{
			ID:          activityID,
			GroupID:     groupID,
			ActorUserID: requesterID,
			Kind:        ActivityReset,
			CreatedAt:   s.clock().UTC(),
		},
	}
	if err := s.store.ResetDraw(ctx, set); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrNoDrawToReset
		}
		return err
	}
	return nil
}

// AssignmentQuery identifies one assignment read.
type AssignmentQuery struct {
	GroupID     string
	RequesterID string
}

// GetAssignment returns the requester's assignment, or nil when the group is
// not drawn or no assignment exists. The first successful read records the
// viewed timestamp; later reads return the original value.
func (s *Service) GetAssignment(ctx context.Context, query AssignmentQuery) (*Assignment, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	groupID, requesterID, err := normalizeRequest(query.GroupID, query.RequesterID)
	if err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListActiveMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !isActiveMember(members, requesterID) {
		return nil, ErrNotMember
	}
	if !group.Drawn {
		return nil, nil
	}

	assignment, err := s.store.GetAssignmentByGiver(ctx, groupID, requesterID)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if assignment.ViewedAt == nil {
		assignment, err = s.store.MarkAssignmentViewed(ctx, groupID, requesterID, s.clock().UTC())
		if err != nil {
			return nil, err
		}
	}
	return &assignment, nil
}

func normalizeRequest(groupID, requesterID string) (string, string, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return "", "", ErrEmptyGroupID
	}
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return "", "", ErrEmptyRequesterID
	}
	return groupID, requesterID, nil
}

// canManageDraw allows the group owner, whether or not they hold a member
// row, and any active member whose role can manage draws.
func canManageDraw(group Group, members []Member, requesterID string) bool {
	if group.OwnerUserID != "" && group.OwnerUserID == requesterID {
		return true
	}
	for _, member := range members {
		if member.UserID == requesterID && member.Active && member.Role.CanManageDraw() {
			return true
		}
	}
	return false
}

func isActiveMember(members []Member, requesterID string) bool {
	for _, member := range members {
		if member.UserID == requesterID && member.Active {
			return true
		}
	}
	return false
}

func sortedGivers(pairing Pairing) []string {
	givers := make([]string, 0, len(pairing))
	for giver := range pairing {
		givers = append(givers, giver)
	}
	sort.Strings(givers)
	return givers
}
