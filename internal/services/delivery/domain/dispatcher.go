// Package domain implements post-draw delivery fan-out. Every giver gets an
// email naming the person they drew plus an in-app notification; the
// notification carries only the group so the inbox never spoils the draw.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	exchange "github.com/giftring/giftring/internal/services/exchange/domain"
)

// TopicDrawn labels in-app notifications produced by a completed draw.
const TopicDrawn = "gift.exchange.drawn"

// NotificationIntent asks the notifications service to create one in-app
// notification. DedupeKey makes redelivery after a crash idempotent.
type NotificationIntent struct {
	RecipientUserID string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	CreatedAt       time.Time
}

// EmailIntent asks the email queue to send one message. DedupeKey makes
// enqueueing idempotent across retries of the same draw.
type EmailIntent struct {
	RecipientUserID string
	Address         string
	Locale          string
	Subject         string
	Body            string
	DedupeKey       string
	CreatedAt       time.Time
}

// NotificationCreator records in-app notifications.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, intent NotificationIntent) error
}

// EmailEnqueuer queues outbound email for asynchronous sending.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, intent EmailIntent) error
}

// Report summarizes one fan-out pass. Failures are counted, never
// propagated: a draw that already committed must not be failed by delivery.
type Report struct {
	Recipients          int
	NotificationsSent   int
	NotificationsFailed int
	EmailsQueued        int
	EmailsSkipped       int
	EmailsFailed        int
}

// Dispatcher fans a committed draw out to each giver over the configured
// channels. Each recipient is handled independently so one bad address or
// one failing channel never blocks the rest.
type Dispatcher struct {
	notifications NotificationCreator
	emails        EmailEnqueuer
	clock         func() time.Time
	logf          func(format string, args ...any)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the dispatcher clock.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger overrides the dispatcher log sink.
func WithLogger(logf func(format string, args ...any)) DispatcherOption {
	return func(d *Dispatcher) {
		if logf != nil {
			d.logf = logf
		}
	}
}

// NewDispatcher creates a dispatcher. Either collaborator may be nil; the
// corresponding channel is skipped.
func NewDispatcher(notifications NotificationCreator, emails EmailEnqueuer, opts ...DispatcherOption) *Dispatcher {
	dispatcher := &Dispatcher{
		notifications: notifications,
		emails:        emails,
		clock:         time.Now,
		logf:          log.Printf,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	return dispatcher
}

// DispatchDraw fans out one committed draw. Outcomes are logged per
// recipient and never returned: the draw is already durable.
func (d *Dispatcher) DispatchDraw(ctx context.Context, group exchange.Group, members []exchange.Member, assignments []exchange.Assignment) {
	report := d.dispatch(ctx, group, members, assignments)
	d.logf("draw delivery for group %s: recipients=%d notifications=%d/%d emails=%d queued, %d skipped, %d failed",
		group.ID,
		report.Recipients,
		report.NotificationsSent,
		report.NotificationsSent+report.NotificationsFailed,
		report.EmailsQueued,
		report.EmailsSkipped,
		report.EmailsFailed,
	)
}

func (d *Dispatcher) dispatch(ctx context.Context, group exchange.Group, members []exchange.Member, assignments []exchange.Assignment) Report {
	var report Report
	if d == nil {
		return report
	}

	membersByID := make(map[string]exchange.Member, len(members))
	for _, member := range members {
		membersByID[member.UserID] = member
	}

	now := d.clock().UTC()
	for _, assignment := range assignments {
		giver, ok := membersByID[assignment.GiverUserID]
		if !ok {
			// Membership changed between solve and dispatch; nothing to
			// deliver to.
			d.logf("draw delivery for group %s: giver %s has no member row, skipping", group.ID, assignment.GiverUserID)
			continue
		}
		report.Recipients++
		dedupeKey := drawDedupeKey(group.ID, giver.UserID)

		if d.notifications != nil {
			intent := NotificationIntent{
				RecipientUserID: giver.UserID,
				Topic:           TopicDrawn,
				PayloadJSON:     drawPayloadJSON(group),
				DedupeKey:       dedupeKey,
				CreatedAt:       now,
			}
			if err := d.notifications.CreateNotification(ctx, intent); err != nil {
				report.NotificationsFailed++
				d.logf("draw delivery for group %s: notify %s failed: %v", group.ID, giver.UserID, err)
			} else {
				report.NotificationsSent++
			}
		}

		if d.emails == nil {
			continue
		}
		address := strings.TrimSpace(giver.Email)
		if address == "" {
			report.EmailsSkipped++
			continue
		}
		receiver := membersByID[assignment.ReceiverUserID]
		intent := EmailIntent{
			RecipientUserID: giver.UserID,
			Address:         address,
			Locale:          giver.Locale,
			Subject:         drawEmailSubject(group),
			Body:            drawEmailBody(group, giver, receiver),
			DedupeKey:       dedupeKey,
			CreatedAt:       now,
		}
		if err := d.emails.EnqueueEmail(ctx, intent); err != nil {
			report.EmailsFailed++
			d.logf("draw delivery for group %s: enqueue email for %s failed: %v", group.ID, giver.UserID, err)
		} else {
			report.EmailsQueued++
		}
	}
	return report
}

func drawDedupeKey(groupID, giverUserID string) string {
	return fmt.Sprintf("exchange.drawn:%s:%s", groupID, giverUserID)
}

func drawPayloadJSON(group exchange.Group) string {
	payload := struct {
		GroupID   string `json:"group_id"`
		GroupName string `json:"group_name"`
		GroupURL  string `json:"group_url"`
	}{
		GroupID:   group.ID,
		GroupName: group.Name,
		GroupURL:  group.URL,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return `{}`
	}
	return string(encoded)
}

func drawEmailSubject(group exchange.Group) string {
	return fmt.Sprintf("Your gift assignment for %s is ready", group.Name)
}

func drawEmailBody(group exchange.Group, giver, receiver exchange.Member) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", giver.DisplayName)
	if name := strings.TrimSpace(receiver.DisplayName); name != "" {
		fmt.Fprintf(&b, "The draw for %s has happened. You are giving a gift to %s.\n", group.Name, name)
	} else {
		fmt.Fprintf(&b, "The draw for %s has happened. Sign in to see who you are giving a gift to.\n", group.Name)
	}
	if strings.TrimSpace(group.URL) != "" {
		fmt.Fprintf(&b, "\n%s\n", group.URL)
	}
	return b.String()
}

var _ exchange.DrawDispatcher = (*Dispatcher)(nil)
