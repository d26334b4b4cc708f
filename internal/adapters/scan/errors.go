package scan

import "errors"

// Sentinel errors for scanning.
var (
	// ErrRootMissing is fatal: the input root does not exist or is not a directory.
	ErrRootMissing = errors.New("raw root missing")
	// ErrNoCategories is fatal: no category directory exists under the root.
	ErrNoCategories = errors.New("no category directories found")
	// ErrCategoryMissing is a warning: the run proceeds with the other categories.
	ErrCategoryMissing = errors.New("category directory missing")
)
