package service

import (
	"errors"

	"github.com/okian/curator/internal/adapters/scan"
)

// Fatal run errors. Per-file problems never surface here; they are counted.
var (
	// ErrNoCategories is returned when none of the category directories exist.
	ErrNoCategories = scan.ErrNoCategories

	// ErrNoImages is returned when scanning and validation leave nothing to split.
	ErrNoImages = errors.New("no valid images found")

	// ErrOutputUnwritable is returned when the output root cannot be written.
	ErrOutputUnwritable = errors.New("output root is not writable")
)
