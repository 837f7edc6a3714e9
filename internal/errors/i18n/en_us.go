package i18n

// Error codes must match the codes defined in internal/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeExchangeNotAuthorized        = "EXCHANGE_NOT_AUTHORIZED"
	CodeExchangeNotMember            = "EXCHANGE_NOT_MEMBER"
	CodeExchangeAlreadyDrawn         = "EXCHANGE_ALREADY_DRAWN"
	CodeExchangeNoDrawToReset        = "EXCHANGE_NO_DRAW_TO_RESET"
	CodeExchangeTooFewParticipants   = "EXCHANGE_INSUFFICIENT_PARTICIPANTS"
	CodeExchangeInfeasibleExclusions = "EXCHANGE_INFEASIBLE_EXCLUSIONS"
	CodeExchangeEmptyGroupID         = "EXCHANGE_EMPTY_GROUP_ID"
	CodeExchangeEmptyRequesterID     = "EXCHANGE_EMPTY_REQUESTER_ID"
	CodeMemberInvalidRole            = "MEMBER_INVALID_ROLE"
	CodeMemberEmptyUserID            = "MEMBER_EMPTY_USER_ID"
	CodeMemberEmptyDisplayName       = "MEMBER_EMPTY_DISPLAY_NAME"
	CodeSolverInvalidMaxAttempts     = "SOLVER_INVALID_MAX_ATTEMPTS"
	CodeSolverNoParticipants         = "SOLVER_NO_PARTICIPANTS"
	CodeNotificationEmptyRecipient   = "NOTIFICATION_EMPTY_RECIPIENT"
	CodeNotificationEmptyTopic       = "NOTIFICATION_EMPTY_TOPIC"
	CodeNotFound                     = "NOT_FOUND"
	CodeConflict                     = "CONFLICT"
	CodeSeedUnavailable              = "SEED_UNAVAILABLE"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Exchange errors
		CodeExchangeNotAuthorized:        "Only the group owner or an admin can do that",
		CodeExchangeNotMember:            "You are not an active member of this group",
		CodeExchangeAlreadyDrawn:         "The Secret Santa draw has already happened for this group",
		CodeExchangeNoDrawToReset:        "There is no draw to reset for this group",
		CodeExchangeTooFewParticipants:   "A draw needs at least {{.Minimum}} active participants, this group has {{.Count}}",
		CodeExchangeInfeasibleExclusions: "No valid draw exists with the current exclusion rules. Loosen your exclusion rules and try again",
		CodeExchangeEmptyGroupID:         "Group ID is required",
		CodeExchangeEmptyRequesterID:     "Requester ID is required",

		// Member errors
		CodeMemberInvalidRole:      "Invalid member role specified",
		CodeMemberEmptyUserID:      "Member user ID cannot be empty",
		CodeMemberEmptyDisplayName: "Member display name cannot be empty",

		// Solver errors
		CodeSolverInvalidMaxAttempts: "Solver attempt budget must be at least 1",
		CodeSolverNoParticipants:     "At least one participant is required",

		// Notification errors
		CodeNotificationEmptyRecipient: "Notification recipient is required",
		CodeNotificationEmptyTopic:     "Notification topic is required",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
		CodeConflict: "The request conflicts with the current state of the group",

		// Random/seed errors
		CodeSeedUnavailable: "Could not gather randomness for the draw",
	},
}
