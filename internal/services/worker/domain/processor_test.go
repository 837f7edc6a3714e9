package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedSender struct {
	errs  []error
	calls int
}

func (s *scriptedSender) Send(_ context.Context, _ Email) error {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) {
		return s.errs[s.calls]
	}
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestProcessSendsOnFirstAttempt(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{}
	processor := NewProcessor(sender, RetryPolicy{}, nil)

	result := processor.Process(context.Background(), Email{ID: 1, Address: "alice@example.com"})
	if result.Outcome != OutcomeSent {
		t.Fatalf("outcome = %v, want OutcomeSent", result.Outcome)
	}
	if result.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", result.AttemptCount)
	}
	if sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", sender.calls)
	}
}

func TestProcessSchedulesRetryWithBackoff(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.December, 1, 18, 0, 0, 0, time.UTC)
	sender := &scriptedSender{errs: []error{errors.New("smtp timeout")}}
	processor := NewProcessor(sender, RetryPolicy{MaxAttempts: 5, Backoff: time.Minute, MaxBackoff: time.Hour}, fixedClock(now))

	result := processor.Process(context.Background(), Email{ID: 1, Address: "alice@example.com", AttemptCount: 2})
	if result.Outcome != OutcomeRetry {
		t.Fatalf("outcome = %v, want OutcomeRetry", result.Outcome)
	}
	if result.AttemptCount != 3 {
		t.Fatalf("attempt count = %d, want 3", result.AttemptCount)
	}
	// Third attempt backs off 1m * 2^2.
	want := now.Add(4 * time.Minute)
	if !result.RetryAt.Equal(want) {
		t.Fatalf("retry at = %v, want %v", result.RetryAt, want)
	}
}

func TestProcessParksPermanentFailures(t *testing.T) {
	t.Parallel()
	cause := errors.New("mailbox does not exist")
	sender := &scriptedSender{errs: []error{Permanent(cause)}}
	processor := NewProcessor(sender, RetryPolicy{}, nil)

	result := processor.Process(context.Background(), Email{ID: 1, Address: "bad@example.com"})
	if result.Outcome != OutcomeDead {
		t.Fatalf("outcome = %v, want OutcomeDead", result.Outcome)
	}
	if !errors.Is(result.Err, cause) {
		t.Fatalf("err = %v, want wrapped cause", result.Err)
	}
}

func TestProcessParksAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	sender := &scriptedSender{errs: []error{errors.New("smtp timeout")}}
	processor := NewProcessor(sender, RetryPolicy{MaxAttempts: 3}, nil)

	result := processor.Process(context.Background(), Email{ID: 1, Address: "alice@example.com", AttemptCount: 2})
	if result.Outcome != OutcomeDead {
		t.Fatalf("outcome = %v, want OutcomeDead on final attempt", result.Outcome)
	}
	if result.AttemptCount != 3 {
		t.Fatalf("attempt count = %d, want 3", result.AttemptCount)
	}
}

func TestNextDelayCapsAtMaxBackoff(t *testing.T) {
	t.Parallel()
	policy := RetryPolicy{MaxAttempts: 10, Backoff: time.Minute, MaxBackoff: 10 * time.Minute}

	cases := []struct {
		attempt int32
		want    time.Duration
	}{
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 2 * time.Minute},
		{attempt: 4, want: 8 * time.Minute},
		{attempt: 5, want: 10 * time.Minute},
		{attempt: 9, want: 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("NextDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestIsPermanentSeesWrappedErrors(t *testing.T) {
	t.Parallel()
	inner := Permanent(errors.New("rejected"))
	wrapped := errors.Join(errors.New("send"), inner)
	if !IsPermanent(wrapped) {
		t.Fatal("wrapped permanent error should stay permanent")
	}
	if IsPermanent(errors.New("transient")) {
		t.Fatal("plain error should not be permanent")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}
