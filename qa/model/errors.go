package model

import (
	"fmt"

	"github.com/Laisky/errors/v2"
)

// Run-level errors. They are reported once, before any event is written.
var (
	ErrAuth              = errors.New("missing or invalid credential")
	ErrConfigNotFound    = errors.New("test configuration not found")
	ErrAuthorization     = errors.New("unauthorized access to test")
	ErrInvalidDefinition = errors.New("invalid test definition")
)

// Pair-level and engine errors.
var (
	ErrPlannerParse         = errors.New("unparsable planner output")
	ErrJudgeParse           = errors.New("unparsable judge output")
	ErrSinkClosed           = errors.New("event sink closed")
	ErrConversationTerminal = errors.New("conversation already terminal")
)

// TransportError is any non-timeout failure talking to the endpoint under test,
// including non-2xx responses.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("endpoint %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("call endpoint %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError means the endpoint did not answer within the configured bound.
type TimeoutError struct {
	URL     string
	Timeout string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("endpoint %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsPairError reports whether err should only abort the current pair.
func IsPairError(err error) bool {
	var te *TransportError
	var to *TimeoutError
	return errors.As(err, &te) || errors.As(err, &to) ||
		errors.Is(err, ErrPlannerParse) || errors.Is(err, ErrJudgeParse)
}
