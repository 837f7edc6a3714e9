package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giftring/giftring/internal/services/exchange/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/exchange.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func seedGroup(t *testing.T, store *Store, groupID string, userIDs ...string) {
	t.Helper()
	now := time.Date(2026, time.December, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutGroup(context.Background(), storage.GroupRecord{
		ID:          groupID,
		Name:        "office party",
		OwnerUserID: userIDs[0],
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("put group: %v", err)
	}
	for i, userID := range userIDs {
		role := "member"
		if i == 0 {
			role = "owner"
		}
		if err := store.PutMember(context.Background(), storage.MemberRecord{
			GroupID:     groupID,
			UserID:      userID,
			DisplayName: userID,
			Role:        role,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			t.Fatalf("put member %s: %v", userID, err)
		}
	}
}

func TestGroupAndMemberRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	group, err := store.GetGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.Name != "office party" {
		t.Fatalf("group name = %q, want %q", group.Name, "office party")
	}
	if group.Drawn {
		t.Fatal("new group should not be drawn")
	}

	members, err := store.ListActiveMembers(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list active members: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("members len = %d, want 3", len(members))
	}
	if members[0].UserID != "alice" || members[2].UserID != "carol" {
		t.Fatalf("members not ordered by user id: %v", members)
	}

	if _, err := store.GetGroup(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing group err = %v, want ErrNotFound", err)
	}
}

func TestListActiveMembersSkipsInactive(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob")

	now := time.Date(2026, time.December, 2, 12, 0, 0, 0, time.UTC)
	if err := store.PutMember(context.Background(), storage.MemberRecord{
		GroupID:     "group-1",
		UserID:      "bob",
		DisplayName: "bob",
		Role:        "member",
		Active:      false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("deactivate bob: %v", err)
	}

	members, err := store.ListActiveMembers(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list active members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "alice" {
		t.Fatalf("members = %v, want only alice", members)
	}
}

func TestExclusionRoundTripIgnoresDuplicates(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	now := time.Date(2026, time.December, 1, 12, 0, 0, 0, time.UTC)
	rule := storage.ExclusionRecord{
		GroupID:         "group-1",
		UserAID:         "alice",
		UserBID:         "bob",
		CreatedByUserID: "alice",
		CreatedAt:       now,
	}
	if err := store.PutExclusion(context.Background(), rule); err != nil {
		t.Fatalf("put exclusion: %v", err)
	}
	if err := store.PutExclusion(context.Background(), rule); err != nil {
		t.Fatalf("put duplicate exclusion: %v", err)
	}

	rules, err := store.ListExclusions(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list exclusions: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("exclusions len = %d, want 1", len(rules))
	}
	if rules[0].UserAID != "alice" || rules[0].UserBID != "bob" {
		t.Fatalf("exclusion = %+v", rules[0])
	}
}

func drawRecords(groupID string, at time.Time) ([]storage.AssignmentRecord, storage.ActivityRecord) {
	assignments := []storage.AssignmentRecord{
		{GroupID: groupID, GiverUserID: "alice", ReceiverUserID: "bob", ExcludedIDsJSON: `["carol"]`, CreatedAt: at},
		{GroupID: groupID, GiverUserID: "bob", ReceiverUserID: "carol", ExcludedIDsJSON: "[]", CreatedAt: at},
		{GroupID: groupID, GiverUserID: "carol", ReceiverUserID: "alice", ExcludedIDsJSON: "[]", CreatedAt: at},
	}
	activity := storage.ActivityRecord{
		ID:          "activity-" + at.Format("150405"),
		GroupID:     groupID,
		ActorUserID: "alice",
		Kind:        "draw",
		CreatedAt:   at,
	}
	return assignments, activity
}

func TestCreateDrawIsAtomicAndSingleWinner(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	at := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	assignments, activity := drawRecords("group-1", at)
	if err := store.CreateDraw(context.Background(), "group-1", assignments, activity); err != nil {
		t.Fatalf("create draw: %v", err)
	}

	group, err := store.GetGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !group.Drawn {
		t.Fatal("group should be drawn after create draw")
	}

	stored, err := store.ListAssignmentsByGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("assignments len = %d, want 3", len(stored))
	}
	if stored[0].GiverUserID != "alice" || stored[0].ExcludedIDsJSON != `["carol"]` {
		t.Fatalf("assignment[0] = %+v", stored[0])
	}
	if stored[0].ViewedAt != nil {
		t.Fatal("new assignment should not be viewed")
	}

	// A second draw loses the compare-and-set and persists nothing new.
	again, activityAgain := drawRecords("group-1", at.Add(time.Minute))
	err = store.CreateDraw(context.Background(), "group-1", again, activityAgain)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second draw err = %v, want ErrConflict", err)
	}
	activities, err := store.ListActivitiesByGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("activities len = %d, want 1", len(activities))
	}

	missing, missingActivity := drawRecords("missing", at)
	if err := store.CreateDraw(context.Background(), "missing", missing, missingActivity); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("draw on missing group err = %v, want ErrNotFound", err)
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	var journalMode string
	if err := store.sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}
	var busyTimeout int
	if err := store.sqlDB.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", busyTimeout)
	}
	var foreignKeys int
	if err := store.sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestCreateDrawSerializesConcurrentDraws(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	at := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	const racers = 8
	results := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		assignments, activity := drawRecords("group-1", at)
		activity.ID = fmt.Sprintf("activity-%d", i)
		go func() {
			start.Wait()
			results <- store.CreateDraw(context.Background(), "group-1", assignments, activity)
		}()
	}
	start.Done()

	var wins, conflicts int
	for i := 0; i < racers; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, storage.ErrConflict):
			conflicts++
		default:
			t.Fatalf("concurrent draw err = %v, want nil or ErrConflict", err)
		}
	}
	if wins != 1 || conflicts != racers-1 {
		t.Fatalf("wins = %d, conflicts = %d, want 1 and %d", wins, conflicts, racers-1)
	}

	stored, err := store.ListAssignmentsByGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("assignments len = %d, want 3", len(stored))
	}
	activities, err := store.ListActivitiesByGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("activities len = %d, want 1", len(activities))
	}
}

func TestResetDrawClearsAssignments(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	at := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	resetActivity := storage.ActivityRecord{
		ID: "activity-reset", GroupID: "group-1", ActorUserID: "alice", Kind: "reset", CreatedAt: at,
	}

	// Resetting before any draw is a conflict.
	if err := store.ResetDraw(context.Background(), "group-1", resetActivity); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("reset before draw err = %v, want ErrConflict", err)
	}

	assignments, drawActivity := drawRecords("group-1", at)
	if err := store.CreateDraw(context.Background(), "group-1", assignments, drawActivity); err != nil {
		t.Fatalf("create draw: %v", err)
	}
	resetActivity.CreatedAt = at.Add(time.Hour)
	if err := store.ResetDraw(context.Background(), "group-1", resetActivity); err != nil {
		t.Fatalf("reset draw: %v", err)
	}

	group, err := store.GetGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.Drawn {
		t.Fatal("group should not be drawn after reset")
	}
	stored, err := store.ListAssignmentsByGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("assignments len = %d, want 0 after reset", len(stored))
	}

	activities, err := store.ListActivitiesByGroup(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(activities) != 2 || activities[0].Kind != "draw" || activities[1].Kind != "reset" {
		t.Fatalf("activities = %+v, want draw then reset", activities)
	}

	// A redraw after reset succeeds.
	redraw, redrawActivity := drawRecords("group-1", at.Add(2*time.Hour))
	redrawActivity.ID = "activity-redraw"
	if err := store.CreateDraw(context.Background(), "group-1", redraw, redrawActivity); err != nil {
		t.Fatalf("redraw after reset: %v", err)
	}
}

func TestMarkAssignmentViewedSetsOnce(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	at := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	assignments, activity := drawRecords("group-1", at)
	if err := store.CreateDraw(context.Background(), "group-1", assignments, activity); err != nil {
		t.Fatalf("create draw: %v", err)
	}

	first := at.Add(time.Hour)
	record, err := store.MarkAssignmentViewed(context.Background(), "group-1", "alice", first)
	if err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if record.ViewedAt == nil || !record.ViewedAt.Equal(first) {
		t.Fatalf("viewed at = %v, want %v", record.ViewedAt, first)
	}

	second := at.Add(2 * time.Hour)
	record, err = store.MarkAssignmentViewed(context.Background(), "group-1", "alice", second)
	if err != nil {
		t.Fatalf("second mark viewed: %v", err)
	}
	if record.ViewedAt == nil || !record.ViewedAt.Equal(first) {
		t.Fatalf("viewed at after second mark = %v, want original %v", record.ViewedAt, first)
	}

	if _, err := store.MarkAssignmentViewed(context.Background(), "group-1", "mallory", first); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("mark viewed for non-giver err = %v, want ErrNotFound", err)
	}
}

func TestGetAssignmentByGiver(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	seedGroup(t, store, "group-1", "alice", "bob", "carol")

	at := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	assignments, activity := drawRecords("group-1", at)
	if err := store.CreateDraw(context.Background(), "group-1", assignments, activity); err != nil {
		t.Fatalf("create draw: %v", err)
	}

	record, err := store.GetAssignmentByGiver(context.Background(), "group-1", "bob")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if record.ReceiverUserID != "carol" {
		t.Fatalf("receiver = %q, want carol", record.ReceiverUserID)
	}
	if !record.CreatedAt.Equal(at) {
		t.Fatalf("created at = %v, want %v", record.CreatedAt, at)
	}

	if _, err := store.GetAssignmentByGiver(context.Background(), "group-1", "mallory"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get assignment for non-giver err = %v, want ErrNotFound", err)
	}
}
