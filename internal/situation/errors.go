package situation

import "errors"

var (
	ErrRequestFailed     = errors.New("situation request failed")
	ErrCancelled         = errors.New("situation request cancelled")
	ErrAllRequestsFailed = errors.New("all situation requests failed")
)

// Error carries one of the sentinel kinds above plus a readable cause.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

// Is matches by kind, so errors.Is(err, ErrRequestFailed) works on any *Error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func requestFailed(msg string, cause error) *Error {
	return &Error{Kind: ErrRequestFailed, Msg: msg, Cause: cause}
}
