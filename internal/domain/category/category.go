// Package category defines the closed set of damage severity categories and
// the configuration attached to each of them.
package category

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned when a name does not match any category.
var ErrUnknownCategory = errors.New("unknown category")

// Category is a damage severity label. The zero value is not a valid category.
type Category int

// Categories in canonical order. The order drives scanning, splitting and
// sequence numbering, so it must not change between runs.
const (
	Minor Category = iota + 1
	Moderate
	Severe
)

// Spec carries the configuration attached to a category.
type Spec struct {
	Label       string
	Description string
	// CostMin and CostMax bound the repair cost in whole currency units (USD).
	CostMin  int
	CostMax  int
	Keywords []string // informational only
}

var specs = map[Category]Spec{
	Minor: {
		Label:       "Minor",
		Description: "Small dents, scratches, minor bumper damage",
		CostMin:     500,
		CostMax:     2000,
		Keywords:    []string{"scratch", "dent", "minor", "small", "bumper"},
	},
	Moderate: {
		Label:       "Moderate",
		Description: "Significant body damage, broken lights, door damage",
		CostMin:     2000,
		CostMax:     8000,
		Keywords:    []string{"door", "panel", "moderate", "broken", "damaged"},
	},
	Severe: {
		Label:       "Severe",
		Description: "Major structural damage, totaled vehicle, frame damage",
		CostMin:     8000,
		CostMax:     25000,
		Keywords:    []string{"totaled", "severe", "crushed", "frame", "major"},
	},
}

var names = map[Category]string{
	Minor:    "minor",
	Moderate: "moderate",
	Severe:   "severe",
}

// All returns every category in canonical order.
func All() []Category {
	return []Category{Minor, Moderate, Severe}
}

// Parse maps a directory name to its category. Matching is exact.
func Parse(s string) (Category, error) {
	for _, c := range All() {
		if names[c] == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// String returns the directory name of the category.
func (c Category) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := names[c]
	return ok
}

// Spec returns the configuration for c. It panics on an invalid category,
// which can only be produced by converting an arbitrary int.
func (c Category) Spec() Spec {
	s, ok := specs[c]
	if !ok {
		panic("category: spec requested for " + c.String())
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := Parse(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
