// Package split assigns accepted images to train, validation and test
// partitions, stratified by category.
package split

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/model"
)

// minSplittable is the smallest category size that can fill all three splits.
const minSplittable = 3

// ErrInvalidRatios is returned by New when ratios are out of range or do not sum to 1.
var ErrInvalidRatios = errors.New("invalid split ratios")

// Ratios are the target split fractions.
type Ratios struct {
	Train      float64
	Validation float64
	Test       float64
}

// DefaultRatios is the 70/15/15 split.
var DefaultRatios = Ratios{Train: 0.70, Validation: 0.15, Test: 0.15}

// Shuffler is the random capability the splitter needs. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Warning reports a category that could not be stratified.
type Warning struct {
	Category category.Category
	Count    int
}

func (w Warning) String() string {
	return fmt.Sprintf("category %s has %d image(s); all assigned to train", w.Category, w.Count)
}

// Counts is the number of images routed to each split for one category.
type Counts struct {
	Train      int
	Validation int
	Test       int
}

// Splitter performs the two-stage stratified partition.
type Splitter struct {
	ratios  Ratios
	seed    int64
	newRand func(seed int64) Shuffler
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeed sets the seed of the shuffle source.
func WithSeed(seed int64) Option {
	return func(s *Splitter) {
		s.seed = seed
	}
}

// WithShuffler replaces the random source factory. Each Assign call draws a
// fresh source from it so repeated calls give identical results.
func WithShuffler(f func(seed int64) Shuffler) Option {
	return func(s *Splitter) {
		if f != nil {
			s.newRand = f
		}
	}
}

// New creates a Splitter for the given ratios.
func New(r Ratios, opts ...Option) (*Splitter, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	s := &Splitter{
		ratios: r,
		seed:   42,
		newRand: func(seed int64) Shuffler {
			return rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible shuffles, not security
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (r Ratios) validate() error {
	for _, v := range []float64{r.Train, r.Validation, r.Test} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %+v", ErrInvalidRatios, r)
		}
	}
	if math.Abs(r.Train+r.Validation+r.Test-1) > 1e-6 || r.Train <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidRatios, r)
	}
	return nil
}

// Plan returns how many of n images go to each split. Categories smaller than
// three images are not split.
func (s *Splitter) Plan(n int) Counts {
	if n < minSplittable {
		return Counts{Train: n}
	}
	holdout := int(math.Round(float64(n) * (1 - s.ratios.Train)))
	if holdout > n {
		holdout = n
	}
	test := 0
	if rest := s.ratios.Validation + s.ratios.Test; rest > 0 {
		test = int(math.Round(float64(holdout) * s.ratios.Test / rest))
	}
	return Counts{Train: n - holdout, Validation: holdout - test, Test: test}
}

// Assign routes every image to exactly one split. The input order does not
// matter: images are grouped by category and sorted by digest before the
// seeded shuffle, so identical content always yields identical assignments.
// The result is ordered by category, then digest.
func (s *Splitter) Assign(images []model.Accepted) ([]model.Assignment, []Warning) {
	groups := make(map[category.Category][]model.Accepted)
	for _, img := range images {
		groups[img.Category] = append(groups[img.Category], img)
	}

	rng := s.newRand(s.seed)
	out := make([]model.Assignment, 0, len(images))
	var warnings []Warning

	for _, cat := range category.All() {
		group := groups[cat]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Digest.Less(group[j].Digest) })

		counts := s.Plan(len(group))
		if len(group) < minSplittable {
			warnings = append(warnings, Warning{Category: cat, Count: len(group)})
		}

		splitOf := make(map[int]model.Split, len(group))
		idx := make([]int, len(group))
		for i := range idx {
			idx[i] = i
		}

		// Stage one carves the holdout from train.
		if counts.Train < len(group) {
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		for _, i := range idx[:counts.Train] {
			splitOf[i] = model.Train
		}

		// Stage two carves test from the holdout.
		holdout := idx[counts.Train:]
		if counts.Test > 0 && counts.Validation > 0 {
			rng.Shuffle(len(holdout), func(i, j int) { holdout[i], holdout[j] = holdout[j], holdout[i] })
		}
		for k, i := range holdout {
			if k < counts.Validation {
				splitOf[i] = model.Validation
			} else {
				splitOf[i] = model.Test
			}
		}

		for i, img := range group {
			out = append(out, model.Assignment{Image: img, Split: splitOf[i]})
		}
	}

	return out, warnings
}
