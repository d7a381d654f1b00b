package apperrors

// Code is the stable, machine-readable kind of an AppError.
type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeInvalidParticipants Code = "INVALID_PARTICIPANTS"
	CodeInvalidContent      Code = "INVALID_CONTENT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeForbidden           Code = "FORBIDDEN"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeNotificationFailure Code = "NOTIFICATION_FAILURE"
	CodeInternal            Code = "INTERNAL"
)
