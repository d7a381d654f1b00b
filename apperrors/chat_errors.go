package apperrors

var (
	// Domain errors returned by the chat service and the identity store.
	ErrInvalidParticipants = New(CodeInvalidParticipants, "conversation requires two distinct existing users")
	ErrInvalidContent      = New(CodeInvalidContent, "message content must not be empty")
	ErrContentTooLong      = New(CodeInvalidContent, "message content is too long")
	ErrConversationMissing = NotFound("conversation not found")
	ErrMessageMissing      = NotFound("message not found")
	ErrUserNotFound        = NotFound("user not found")
	ErrNotParticipant      = Forbidden("user is not a participant of this conversation")
	ErrNotReceiver         = Forbidden("only the receiver can mark this message as read")
	ErrUsernameTaken       = AlreadyExists("username already registered")
	ErrEmailTaken          = AlreadyExists("email already registered")
	ErrInvalidCredentials  = Unauthorized("incorrect username or password")
	ErrInvalidToken        = Unauthorized("invalid or expired token")
	ErrInactiveUser        = Forbidden("inactive user")
)

func NotificationFailure(cause error) error {
	return Wrap(CodeNotificationFailure, "notification delivery failed", cause)
}
