// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Exchange errors
	CodeExchangeNotAuthorized        Code = "EXCHANGE_NOT_AUTHORIZED"
	CodeExchangeNotMember            Code = "EXCHANGE_NOT_MEMBER"
	CodeExchangeAlreadyDrawn         Code = "EXCHANGE_ALREADY_DRAWN"
	CodeExchangeNoDrawToReset        Code = "EXCHANGE_NO_DRAW_TO_RESET"
	CodeExchangeTooFewParticipants   Code = "EXCHANGE_INSUFFICIENT_PARTICIPANTS"
	CodeExchangeInfeasibleExclusions Code = "EXCHANGE_INFEASIBLE_EXCLUSIONS"
	CodeExchangeEmptyGroupID         Code = "EXCHANGE_EMPTY_GROUP_ID"
	CodeExchangeEmptyRequesterID     Code = "EXCHANGE_EMPTY_REQUESTER_ID"

	// Member errors
	CodeMemberInvalidRole      Code = "MEMBER_INVALID_ROLE"
	CodeMemberEmptyUserID      Code = "MEMBER_EMPTY_USER_ID"
	CodeMemberEmptyDisplayName Code = "MEMBER_EMPTY_DISPLAY_NAME"

	// Solver errors
	CodeSolverInvalidMaxAttempts Code = "SOLVER_INVALID_MAX_ATTEMPTS"
	CodeSolverNoParticipants     Code = "SOLVER_NO_PARTICIPANTS"

	// Notification errors
	CodeNotificationEmptyRecipient Code = "NOTIFICATION_EMPTY_RECIPIENT"
	CodeNotificationEmptyTopic     Code = "NOTIFICATION_EMPTY_TOPIC"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// Random/seed errors
	CodeSeedUnavailable Code = "SEED_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeExchangeEmptyGroupID,
		CodeExchangeEmptyRequesterID,
		CodeMemberInvalidRole,
		CodeMemberEmptyUserID,
		CodeMemberEmptyDisplayName,
		CodeSolverInvalidMaxAttempts,
		CodeSolverNoParticipants,
		CodeNotificationEmptyRecipient,
		CodeNotificationEmptyTopic:
		return codes.InvalidArgument

	// PermissionDenied - requester lacks the required role
	case CodeExchangeNotAuthorized,
		CodeExchangeNotMember:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow operation
	case CodeExchangeAlreadyDrawn,
		CodeExchangeNoDrawToReset,
		CodeExchangeTooFewParticipants,
		CodeExchangeInfeasibleExclusions,
		CodeConflict:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
