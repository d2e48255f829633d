package action

import (
	"errors"
	"log"
)

// DefaultServerErrorMessage is reported for failures that are not safe to
// show to the user.
const DefaultServerErrorMessage = "Something went wrong while executing the operation."

const (
	msgInvalidHandle   = "Invalid X handle"
	msgProfileNotFound = "profile not found"
	msgRateLimited     = "Too many requests right now, please try again in a few minutes."
)

// Error is a failure whose message is shown to the user as-is.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func userError(message string, err error) *Error {
	return &Error{Message: message, Err: err}
}

// ServerErrorMessage maps err to the text reported in ActionResult.ServerError.
// Unexpected errors are logged and replaced with DefaultServerErrorMessage.
func ServerErrorMessage(err error) string {
	var actionErr *Error
	if errors.As(err, &actionErr) {
		return actionErr.Message
	}
	log.Printf("[Action] Unexpected error: %v", err)
	return DefaultServerErrorMessage
}
