package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the application. Handlers map these onto HTTP statuses.
var (
	ErrValidation  = errors.New("invalid input")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("resource not found")
	ErrConflict    = errors.New("conflicting state")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUpstream    = errors.New("upstream collaborator unavailable")
)

// Machine-readable denial reasons carried alongside sentinel errors so clients
// can render an accurate message instead of a generic failure.
const (
	ReasonNoChatRelationship      = "no_chat_relationship"
	ReasonNoTherapistRelationship = "no_therapist_client_relationship"
	ReasonNotRoomMember           = "not_room_member"
	ReasonRoleRequired            = "privileged_role_required"
	ReasonRateLimited             = "rate_limited"
	ReasonSessionTerminal         = "session_terminal"
	ReasonNotSessionParticipant   = "not_session_participant"
)

// ReasonedError wraps a sentinel error with a machine-readable reason code.
type ReasonedError struct {
	Err    error
	Reason string
}

func (e *ReasonedError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Reason)
}

func (e *ReasonedError) Unwrap() error {
	return e.Err
}

// WithReason attaches a reason code to a sentinel error.
func WithReason(err error, reason string) error {
	return &ReasonedError{Err: err, Reason: reason}
}

// ReasonOf extracts the reason code from an error chain, if present.
func ReasonOf(err error) string {
	var re *ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
