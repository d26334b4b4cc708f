package annotation

import "errors"

// Sentinel errors for annotation output.
var (
	ErrWrite    = errors.New("annotation: write failed")
	ErrDatabase = errors.New("annotation: database failed")
	ErrParse    = errors.New("annotation: malformed table")
)
