package session

import "errors"

var (
	// ErrNotFound is returned when a session or block does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIllegalTransition is returned when the current status does not
	// permit the requested change.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrBlockMismatch is returned when a block does not belong to the
	// session it was addressed through.
	ErrBlockMismatch = errors.New("block does not belong to session")
)

// UserMessage turns an operation error into a short message safe to show an
// end user. It never includes identifiers or internal detail.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "That session could not be found."
	case errors.Is(err, ErrIllegalTransition):
		return "That action is not available for the session right now."
	case errors.Is(err, ErrBlockMismatch):
		return "That block is not part of this session."
	default:
		return "Something went wrong. Please try again."
	}
}
