package notifications

import "errors"

// Dispatch errors.
var (
	ErrRateLimited    = errors.New("recipient rate limit exceeded")
	ErrNotFound       = errors.New("notification not found")
	ErrInvalidRequest = errors.New("invalid notification request")
)

// Channel errors.
var (
	ErrNotImplemented   = errors.New("not implemented")
	ErrChannelTimeout   = errors.New("channel delivery timed out")
	ErrChannelNotWired  = errors.New("no adapter registered for channel")
	ErrMissingRecipient = errors.New("recipient address missing")
)
