package prompta

import (
	"fmt"
	"strings"
)

// ValidationError reports raw input that does not satisfy the input schema.
type ValidationError struct {
	Errors []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) > 0 {
		return "invalid input: " + strings.Join(e.Errors, "; ")
	}
	if e.Err != nil {
		return "invalid input: " + e.Err.Error()
	}
	return "invalid input"
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PrepareError wraps a failure of the pre-processor.
type PrepareError struct {
	Err error
}

func (e *PrepareError) Error() string { return "prepare input: " + e.Err.Error() }

func (e *PrepareError) Unwrap() error { return e.Err }

// HistoryError wraps a failure of the history generator. Stale reports
// whether previously cached entries were left in place.
type HistoryError struct {
	Err   error
	Stale bool
}

func (e *HistoryError) Error() string { return "generate history: " + e.Err.Error() }

func (e *HistoryError) Unwrap() error { return e.Err }

// TemplateError reports a template slot that could not be rendered.
type TemplateError struct {
	Slot string
	Err  error
}

func (e *TemplateError) Error() string {
	if e.Slot == "" {
		return "render template: " + e.Err.Error()
	}
	return fmt.Sprintf("render %s template: %v", e.Slot, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// CompletionError is an upstream failure of the completion call. Message,
// Code, Type and Param mirror the API's error object.
type CompletionError struct {
	Message    string
	Code       string
	Type       string
	Param      string
	StatusCode int
	Err        error
}

// TypeTransport marks completion errors that never reached the API's error
// object (network failures, undecodable bodies).
const TypeTransport = "transport_error"

func (e *CompletionError) Error() string {
	var b strings.Builder
	b.WriteString("completion failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Type != "" {
		fmt.Fprintf(&b, " [type=%s", e.Type)
		if e.Code != "" {
			fmt.Fprintf(&b, " code=%s", e.Code)
		}
		if e.Param != "" {
			fmt.Fprintf(&b, " param=%s", e.Param)
		}
		b.WriteString("]")
	}
	return b.String()
}

func (e *CompletionError) Unwrap() error { return e.Err }

// CorrectionError reports a corrector that failed to produce messages.
// Cause is the completion failure that triggered the correction.
type CorrectionError struct {
	Cause error
	Err   error
}

func (e *CorrectionError) Error() string {
	return fmt.Sprintf("correct after %v: %v", e.Cause, e.Err)
}

func (e *CorrectionError) Unwrap() []error { return []error{e.Err, e.Cause} }
