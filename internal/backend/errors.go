package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for backend calls.
var (
	// ErrDataNotLoaded means the city exists but its dataset has not been
	// computed yet; start a load operation and retry.
	ErrDataNotLoaded = errors.New("city data not loaded")

	// ErrNotFound indicates an unknown city or operation.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the backend could not be reached or failed.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrRejected indicates the backend refused the request.
	ErrRejected = errors.New("request rejected")

	// ErrBadResponse indicates a response that could not be understood.
	ErrBadResponse = errors.New("bad response from backend")

	// ErrMalformedFrame indicates a progress event whose payload is not a frame.
	ErrMalformedFrame = errors.New("malformed progress frame")
)

// CodeDataNotLoaded is the structured error code for ErrDataNotLoaded.
const CodeDataNotLoaded = "DATA_NOT_LOADED"

// legacyNotLoaded is matched against messages from backends that predate
// structured error codes.
const legacyNotLoaded = "not loaded yet"

// Error provides detailed information about a failed backend call.
type Error struct {
	Op      string // Client operation, e.g. "get city data"
	Status  int    // HTTP status, 0 if no response was received
	Code    string // Backend error code, if any
	Message string // Backend or client message
	Err     error  // Sentinel classifying the failure
	Cause   error  // Underlying transport or decoding error, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// classify maps an error response to a sentinel. The structured code wins;
// the message substring is a fallback for older backends.
func classify(status int, body errorResponse) error {
	if body.Code == CodeDataNotLoaded || strings.Contains(strings.ToLower(body.Error), legacyNotLoaded) {
		return ErrDataNotLoaded
	}
	switch {
	case status == 404:
		return ErrNotFound
	case status >= 500:
		return ErrUnavailable
	case status >= 400:
		return ErrRejected
	default:
		return ErrBadResponse
	}
}
