package analysis

import (
	"errors"
	"fmt"
)

// PreviewLen caps raw-response excerpts attached to errors.
const PreviewLen = 500

type Kind string

const (
	KindInput    Kind = "input_error"
	KindUpstream Kind = "upstream_error"
	KindFormat   Kind = "format_error"
)

// Error is what Service returns for every failed Analyze/Reanalyze.
// Message is safe to show to the end user.
type Error struct {
	Kind        Kind
	Message     string
	StatusCode  int    // upstream HTTP status, 0 if the service was unreachable
	RawResponse string // truncated model text, FormatError only
	ParseError  string // decoder message, FormatError caused by *ParseError only
	Err         error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindUpstream && e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.Message, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func InputError(msg string) *Error {
	return &Error{Kind: KindInput, Message: msg}
}

// UpstreamError wraps a failed call to the model service.
func UpstreamError(status int, err error) *Error {
	msg := "model service unreachable"
	if status != 0 {
		msg = fmt.Sprintf("model service returned status %d", status)
	}
	return &Error{Kind: KindUpstream, Message: msg, StatusCode: status, Err: err}
}

func formatError(err error) *Error {
	e := &Error{Kind: KindFormat, Err: err}
	var ee *ExtractionError
	var pe *ParseError
	switch {
	case errors.As(err, &ee):
		e.Message = "no JSON found in model response"
		e.RawResponse = ee.Preview
	case errors.As(err, &pe):
		e.Message = "model response is not a valid analysis result"
		e.RawResponse = pe.Preview
		e.ParseError = pe.Message
	default:
		e.Message = "unexpected model response"
	}
	return e
}

// ExtractionError: the completion contained nothing that looks like a JSON object.
type ExtractionError struct {
	Preview string
}

func (e *ExtractionError) Error() string { return "no JSON found" }

// ParseError: a JSON candidate was found but does not decode into AnalysisResult.
type ParseError struct {
	Message string
	Preview string
}

func (e *ParseError) Error() string { return "bad JSON: " + e.Message }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
