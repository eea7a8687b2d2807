package email

import "errors"

var (
	// ErrInvalidTemplate is returned when a template is unknown or fails to render.
	ErrInvalidTemplate = errors.New("invalid email template")
	// ErrInvalidAddress is returned for a recipient address that cannot be parsed.
	ErrInvalidAddress = errors.New("invalid email address")
	// ErrFailoverNotConfigured is returned by SendViaFailover without a secondary endpoint.
	ErrFailoverNotConfigured = errors.New("failover smtp endpoint not configured")
	// ErrPoolClosed is returned when sending through a closed pool.
	ErrPoolClosed = errors.New("smtp pool closed")
)
