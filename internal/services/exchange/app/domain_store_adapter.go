package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giftring/giftring/internal/services/exchange/domain"
	"github.com/giftring/giftring/internal/services/exchange/storage"
)

// domainStoreAdapter bridges the domain store contract onto the persistence
// records, translating error sentinels and the exclusion snapshot encoding.
type domainStoreAdapter struct {
	store storage.Store
}

func newDomainStoreAdapter(store storage.Store) *domainStoreAdapter {
	return &domainStoreAdapter{store: store}
}

func (a *domainStoreAdapter) GetGroup(ctx context.Context, groupID string) (domain.Group, error) {
	if a == nil || a.store == nil {
		return domain.Group{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetGroup(ctx, groupID)
	if err != nil {
		return domain.Group{}, mapStorageError(err, domain.ErrGroupNotFound)
	}
	return toDomainGroup(record), nil
}

func (a *domainStoreAdapter) ListActiveMembers(ctx context.Context, groupID string) ([]domain.Member, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.store.ListActiveMembers(ctx, groupID)
	if err != nil {
		return nil, mapStorageError(err, domain.ErrGroupNotFound)
	}
	members := make([]domain.Member, 0, len(records))
	for _, record := range records {
		members = append(members, toDomainMember(record))
	}
	return members, nil
}

func (a *domainStoreAdapter) ListExclusions(ctx context.Context, groupID string) ([]domain.ExclusionRule, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.store.ListExclusions(ctx, groupID)
	if err != nil {
		return nil, mapStorageError(err, domain.ErrGroupNotFound)
	}
	rules := make([]domain.ExclusionRule, 0, len(records))
	for _, record := range records {
		rules = append(rules, domain.ExclusionRule{
			GroupID:         record.GroupID,
			UserAID:         record.UserAID,
			UserBID:         record.UserBID,
			CreatedByUserID: record.CreatedByUserID,
		})
	}
	return rules, nil
}

func (a *domainStoreAdapter) CreateDraw(ctx context.Context, set domain.DrawSet) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	records := make([]storage.AssignmentRecord, 0, len(set.Assignments))
	for _, assignment := range set.Assignments {
		record, err := toStorageAssignment(assignment)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	err := a.store.CreateDraw(ctx, set.GroupID, records, toStorageActivity(set.Activity))
	return mapStorageError(err, domain.ErrGroupNotFound)
}

func (a *domainStoreAdapter) ResetDraw(ctx context.Context, set domain.ResetSet) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	err := a.store.ResetDraw(ctx, set.GroupID, toStorageActivity(set.Activity))
	return mapStorageError(err, domain.ErrGroupNotFound)
}

func (a *domainStoreAdapter) GetAssignmentByGiver(ctx context.Context, groupID, giverUserID string) (domain.Assignment, error) {
	if a == nil || a.store == nil {
		return domain.Assignment{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetAssignmentByGiver(ctx, groupID, giverUserID)
	if err != nil {
		return domain.Assignment{}, mapStorageError(err, domain.ErrAssignmentNotFound)
	}
	return toDomainAssignment(record)
}

func (a *domainStoreAdapter) MarkAssignmentViewed(ctx context.Context, groupID, giverUserID string, viewedAt time.Time) (domain.Assignment, error) {
	if a == nil || a.store == nil {
		return domain.Assignment{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.MarkAssignmentViewed(ctx, groupID, giverUserID, viewedAt)
	if err != nil {
		return domain.Assignment{}, mapStorageError(err, domain.ErrAssignmentNotFound)
	}
	return toDomainAssignment(record)
}

func toDomainGroup(record storage.GroupRecord) domain.Group {
	return domain.Group{
		ID:          record.ID,
		Name:        record.Name,
		OwnerUserID: record.OwnerUserID,
		URL:         record.URL,
		Drawn:       record.Drawn,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func toDomainMember(record storage.MemberRecord) domain.Member {
	return domain.Member{
		GroupID:     record.GroupID,
		UserID:      record.UserID,
		DisplayName: record.DisplayName,
		Email:       record.Email,
		Locale:      record.Locale,
		Role:        domain.RoleFromLabel(record.Role),
		Active:      record.Active,
	}
}

func toDomainAssignment(record storage.AssignmentRecord) (domain.Assignment, error) {
	var excludedIDs []string
	if record.ExcludedIDsJSON != "" {
		if err := json.Unmarshal([]byte(record.ExcludedIDsJSON), &excludedIDs); err != nil {
			return domain.Assignment{}, fmt.Errorf("decode exclusion snapshot: %w", err)
		}
	}
	return domain.Assignment{
		GroupID:        record.GroupID,
		GiverUserID:    record.GiverUserID,
		ReceiverUserID: record.ReceiverUserID,
		ExcludedIDs:    excludedIDs,
		ViewedAt:       record.ViewedAt,
		CreatedAt:      record.CreatedAt,
	}, nil
}

func toStorageAssignment(assignment domain.Assignment) (storage.AssignmentRecord, error) {
	excludedIDs := assignment.ExcludedIDs
	if excludedIDs == nil {
		excludedIDs = []string{}
	}
	encoded, err := json.Marshal(excludedIDs)
	if err != nil {
		return storage.AssignmentRecord{}, fmt.Errorf("encode exclusion snapshot: %w", err)
	}
	return storage.AssignmentRecord{
		GroupID:         assignment.GroupID,
		GiverUserID:     assignment.GiverUserID,
		ReceiverUserID:  assignment.ReceiverUserID,
		ExcludedIDsJSON: string(encoded),
		ViewedAt:        assignment.ViewedAt,
		CreatedAt:       assignment.CreatedAt,
	}, nil
}

func toStorageActivity(activity domain.Activity) storage.ActivityRecord {
	return storage.ActivityRecord{
		ID:          activity.ID,
		GroupID:     activity.GroupID,
		ActorUserID: activity.ActorUserID,
		Kind:        string(activity.Kind),
		CreatedAt:   activity.CreatedAt,
	}
}

func mapStorageError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return notFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict
	default:
		return err
	}
}

var _ domain.Store = (*domainStoreAdapter)(nil)
