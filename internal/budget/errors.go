package budget

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse marks a response with an unexpected shape. It is
	// always wrapped in a *TransportError.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrSuperseded is returned when a response belongs to a period that is
	// no longer active and was discarded.
	ErrSuperseded = errors.New("period superseded")
)

// TransportError is a network, server-side or decoding failure. The cache
// entry for the category stays as it was.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ValidationError is a save the server rejected. Message is shown to the
// user verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Malformed wraps a decoding problem as a transport failure.
func Malformed(op string, err error) error {
	if err == nil {
		return &TransportError{Op: op, Err: ErrMalformedResponse}
	}
	return &TransportError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserMessage returns the text to surface for a failed save: the server's
// message for validation failures, a generic one otherwise.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "Failed to save budget."
}
