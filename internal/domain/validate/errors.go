package validate

import (
	"errors"
	"fmt"
)

// Reason classifies why a candidate was rejected.
type Reason string

// Rejection reasons, in the order the checks run.
const (
	ReasonTooLarge             Reason = "too_large"
	ReasonCorrupt              Reason = "corrupt"
	ReasonUnsupportedFormat    Reason = "unsupported_format"
	ReasonTooSmall             Reason = "too_small"
	ReasonUnsupportedColorMode Reason = "unsupported_color_mode"
)

// Sentinel errors matching each Reason through errors.Is.
var (
	ErrTooLarge             = errors.New("file too large")
	ErrCorrupt              = errors.New("corrupt image")
	ErrUnsupportedFormat    = errors.New("unsupported image format")
	ErrTooSmall             = errors.New("image too small")
	ErrUnsupportedColorMode = errors.New("unsupported color mode")
)

var sentinels = map[Reason]error{
	ReasonTooLarge:             ErrTooLarge,
	ReasonCorrupt:              ErrCorrupt,
	ReasonUnsupportedFormat:    ErrUnsupportedFormat,
	ReasonTooSmall:             ErrTooSmall,
	ReasonUnsupportedColorMode: ErrUnsupportedColorMode,
}

// Error is a per-file validation failure. It is never fatal to a run.
type Error struct {
	Reason Reason
	Path   string
	Detail string
	Err    error // underlying decode or I/O error, if any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Path, sentinels[e.Reason])
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's reason.
func (e *Error) Is(target error) bool {
	return sentinels[e.Reason] == target
}

// ReasonOf extracts the rejection reason from err, if it is a validation error.
func ReasonOf(err error) (Reason, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Reason, true
	}
	return "", false
}

func reject(reason Reason, path, detail string, err error) *Error {
	return &Error{Reason: reason, Path: path, Detail: detail, Err: err}
}
