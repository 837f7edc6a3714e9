package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHandleErrorMapsDomainCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code Code
		want codes.Code
	}{
		{name: "not authorized", code: CodeExchangeNotAuthorized, want: codes.PermissionDenied},
		{name: "not member", code: CodeExchangeNotMember, want: codes.PermissionDenied},
		{name: "already drawn", code: CodeExchangeAlreadyDrawn, want: codes.FailedPrecondition},
		{name: "no draw to reset", code: CodeExchangeNoDrawToReset, want: codes.FailedPrecondition},
		{name: "too few participants", code: CodeExchangeTooFewParticipants, want: codes.FailedPrecondition},
		{name: "infeasible", code: CodeExchangeInfeasibleExclusions, want: codes.FailedPrecondition},
		{name: "empty group id", code: CodeExchangeEmptyGroupID, want: codes.InvalidArgument},
		{name: "not found", code: CodeNotFound, want: codes.NotFound},
		{name: "seed unavailable", code: CodeSeedUnavailable, want: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := HandleError(New(tc.code, "boom"), "")
			st, ok := status.FromError(err)
			if !ok {
				t.Fatalf("expected gRPC status, got %v", err)
			}
			if st.Code() != tc.want {
				t.Fatalf("status code = %v, want %v", st.Code(), tc.want)
			}
		})
	}
}

func TestHandleErrorUnknownErrorIsInternal(t *testing.T) {
	t.Parallel()

	err := HandleError(fmt.Errorf("disk on fire"), "en-US")
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected gRPC status, got %v", err)
	}
	if st.Code() != codes.Internal {
		t.Fatalf("status code = %v, want Internal", st.Code())
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	base := New(CodeExchangeAlreadyDrawn, "already drawn")
	wrapped := fmt.Errorf("draw group: %w", Wrap(CodeExchangeAlreadyDrawn, "already drawn", errors.New("cas lost")))

	if !errors.Is(wrapped, base) {
		t.Fatal("expected wrapped error to match by code")
	}
	if !IsCode(wrapped, CodeExchangeAlreadyDrawn) {
		t.Fatal("IsCode should match wrapped domain error")
	}
	if GetCode(errors.New("plain")) != CodeUnknown {
		t.Fatal("plain errors should map to CodeUnknown")
	}
}

func TestGetMetadata(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeExchangeTooFewParticipants, "too few", map[string]string{"Count": "2", "Minimum": "3"})
	meta := GetMetadata(fmt.Errorf("draw: %w", err))
	if meta["Count"] != "2" || meta["Minimum"] != "3" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
}
