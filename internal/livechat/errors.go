package livechat

import "errors"

// Errors returned by Bus operations. All of them are local and recoverable;
// callers match with errors.Is.
var (
	// ErrAgentNotEnrolled is returned when an agent sends or subscribes
	// before joining the chat.
	ErrAgentNotEnrolled = errors.New("agent not enrolled")

	// ErrChannelNotFound is returned for channel ids outside the directory.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrInvalidFilter is returned for malformed query parameters.
	ErrInvalidFilter = errors.New("invalid filter")
)
