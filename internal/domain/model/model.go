// Package model contains domain models passed between pipeline stages.
package model

import (
	"time"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/digest"
)

// Split names the partition an accepted image is routed to.
type Split string

// Splits in output order.
const (
	Train      Split = "train"
	Validation Split = "validation"
	Test       Split = "test"
)

// Splits returns every split in canonical order.
func Splits() []Split {
	return []Split{Train, Validation, Test}
}

// Candidate is a file discovered under a category's raw directory.
type Candidate struct {
	Path     string
	Category category.Category
	Size     int64
}

// Accepted is a candidate that passed validation and was not a duplicate.
type Accepted struct {
	Path     string // original path
	Filename string // original base name
	Category category.Category
	Digest   digest.Digest
	// Sequence is the position in the canonical (category, digest) order. It is
	// part of the output file name and the image id.
	Sequence int
}

// Assignment pairs an accepted image with its split.
type Assignment struct {
	Image Accepted
	Split Split
}

// Record is one row of the annotation table.
type Record struct {
	ImageID       string
	Filename      string
	Split         Split
	Category      category.Category
	CategoryLabel string
	RepairCost    float64
	CostMin       int
	CostMax       int
	ProcessedAt   time.Time

	// Sequence orders rows in the serialized table; it is not a column.
	Sequence int
}

// Counters are the raw pipeline counters of one run.
type Counters struct {
	Total           int
	Valid           int
	Invalid         int
	Duplicates      int
	NearDuplicates  int
	NormalizeErrors int
	InvalidByReason map[string]int
	PerCategory     map[category.Category]int
}

// NewCounters returns zeroed counters with every category present.
func NewCounters() Counters {
	c := Counters{
		InvalidByReason: make(map[string]int),
		PerCategory:     make(map[category.Category]int),
	}
	for _, cat := range category.All() {
		c.PerCategory[cat] = 0
	}
	return c
}
