package messaging

import "errors"

var (
	// ErrSelfMessage is returned when sender and recipient are the same agent.
	ErrSelfMessage = errors.New("messaging: cannot message yourself")
	// ErrInvalidContent is returned for empty or oversized message content.
	ErrInvalidContent = errors.New("messaging: invalid content")
	// ErrRecipientNotFound is returned when the recipient is not registered.
	ErrRecipientNotFound = errors.New("messaging: recipient not found")
	// ErrForbidden is returned when the requester is not a thread member.
	// Nonexistent threads produce the same error so that membership probes
	// cannot reveal whether a thread exists.
	ErrForbidden = errors.New("messaging: not a thread member")
)
