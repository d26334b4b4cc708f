// Package synth writes synthetic raw trees for smoke runs and checks that a
// processed tree agrees with its annotation table and statistics.
package synth

import "errors"

// ErrInconsistent is returned by Verify when the output disagrees with itself.
var ErrInconsistent = errors.New("processed output is inconsistent")

// Config describes a synthetic raw tree.
type Config struct {
	Root        string // raw root; one directory per category is created
	PerCategory int    // unique valid images per category
	Duplicates  int    // byte-identical copies placed in other categories
	Corrupt     int    // truncated JPEG files
	Undersized  int    // images below the minimum dimensions
	Size        int    // edge of generated images in pixels
	Seed        int64
}

// Stats reports what Generate wrote.
type Stats struct {
	Unique     int
	Duplicates int
	Corrupt    int
	Undersized int
}

// Files returns the total number of files written.
func (s Stats) Files() int {
	return s.Unique + s.Duplicates + s.Corrupt + s.Undersized
}
