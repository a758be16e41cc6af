package tailoring

import (
	"encoding/json"
	"errors"
	"strings"

	"jobtailor/internal/tailorapi"
)

// ErrorKind is the user-facing category of a failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindParsing    ErrorKind = "parsing_failure"
	KindNetwork    ErrorKind = "network_error"
	KindGeneric    ErrorKind = "generic_failure"
)

// Server messages that mean the resume itself could not be read.
var parsingPhrases = []string{
	"parse",
	"extract",
	"text extraction",
	"resume format",
	"unfortunately",
	"unsupported document",
	"no text content",
	"format is not supported",
	"does not appear to be a valid",
	"not a valid resume",
}

var transportMarkers = []string{
	"status check failed",
	"network error",
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"malformed response",
}

// ClassifiedError is a failure tagged with its kind. It is never mutated after creation.
type ClassifiedError struct {
	kind    ErrorKind
	message string
}

// NewClassifiedError builds a ClassifiedError of an explicit kind.
func NewClassifiedError(kind ErrorKind, message string) *ClassifiedError {
	return &ClassifiedError{kind: kind, message: message}
}

func validationError(message string) *ClassifiedError {
	return NewClassifiedError(KindValidation, message)
}

func (e *ClassifiedError) Error() string {
	return e.message
}

// Kind returns the failure category.
func (e *ClassifiedError) Kind() ErrorKind {
	return e.kind
}

// Message returns the human-readable message.
func (e *ClassifiedError) Message() string {
	return e.message
}

// RecoveryRoute is where the user should go next: parsing failures force a
// new upload, everything else retries from the current step.
func (e *ClassifiedError) RecoveryRoute() Route {
	if e.kind == KindParsing {
		return RouteUpload
	}
	return RouteNone
}

func (e *ClassifiedError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind          ErrorKind `json:"kind"`
		Message       string    `json:"message"`
		RecoveryRoute Route     `json:"recoveryRoute,omitempty"`
	}{e.kind, e.message, e.RecoveryRoute()})
}

// Classify maps a failure message to its kind by case-insensitive substring match.
func Classify(message string) ErrorKind {
	lower := strings.ToLower(message)
	for _, phrase := range parsingPhrases {
		if strings.Contains(lower, phrase) {
			return KindParsing
		}
	}
	for _, marker := range transportMarkers {
		if strings.Contains(lower, marker) {
			return KindNetwork
		}
	}
	return KindGeneric
}

// ClassifyError classifies err once. Errors that are already classified are returned as is.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}
	var transportErr *tailorapi.TransportError
	if errors.As(err, &transportErr) {
		return NewClassifiedError(KindNetwork, err.Error())
	}
	if errors.Is(err, tailorapi.ErrMalformedResponse) {
		return NewClassifiedError(KindNetwork, err.Error())
	}
	message := err.Error()
	var apiErr *tailorapi.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}
	return NewClassifiedError(Classify(message), message)
}
