// Package cost synthesizes repair cost figures per severity category.
//
// The figures are plausible-looking placeholders for annotation and demo
// purposes. They are not real repair estimates.
package cost

import (
	"math"
	"math/rand"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/digest"
)

// Default estimator configuration constants.
const (
	defaultSeed = 42
	// stdDivisor places the range bounds at three standard deviations from the midpoint.
	stdDivisor = 6
	// confidentAbove is the prediction confidence above which the midpoint is quoted as is.
	confidentAbove = 0.8
	// spreadFactor scales the uniform variance applied to less confident predictions.
	spreadFactor = 0.3
	// Currency of every figure produced here.
	Currency = "USD"
)

// Normal is a source of standard normal draws. *rand.Rand satisfies it.
type Normal interface {
	NormFloat64() float64
}

// Uniform is a source of uniform draws in [0,1). *rand.Rand satisfies it.
type Uniform interface {
	Float64() float64
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithSeed sets the run seed that per-image sources are derived from.
func WithSeed(seed int64) Option {
	return func(e *Estimator) {
		e.seed = seed
	}
}

// WithSpec overrides the cost range of a category.
func WithSpec(c category.Category, minCost, maxCost int) Option {
	return func(e *Estimator) {
		if c.Valid() && minCost >= 0 && maxCost >= minCost {
			e.ranges[c] = [2]int{minCost, maxCost}
		}
	}
}

// Estimator draws synthetic costs. It keeps no random state of its own, so a
// single Estimator is safe for concurrent use.
type Estimator struct {
	seed   int64
	ranges map[category.Category][2]int
}

// NewEstimator creates an estimator using the category cost table.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		seed:   defaultSeed,
		ranges: make(map[category.Category][2]int),
	}
	for _, c := range category.All() {
		s := c.Spec()
		e.ranges[c] = [2]int{s.CostMin, s.CostMax}
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Range returns the configured [min, max] for c.
func (e *Estimator) Range(c category.Category) (int, int) {
	r := e.ranges[c]
	return r[0], r[1]
}

// Estimate draws from a normal distribution centred on the midpoint of the
// category range with sigma = width/6, clamps into the range and rounds to cents.
func (e *Estimator) Estimate(c category.Category, r Normal) float64 {
	minCost, maxCost := e.Range(c)
	lo, hi := float64(minCost), float64(maxCost)
	mean := (lo + hi) / 2
	std := (hi - lo) / stdDivisor

	v := mean + std*r.NormFloat64()
	return roundCents(clamp(v, lo, hi))
}

// ForImage estimates the cost of one image from a source derived from the run
// seed and the image digest, so the value does not depend on processing order.
func (e *Estimator) ForImage(c category.Category, d digest.Digest) float64 {
	return e.Estimate(c, SourceFor(e.seed, d))
}

// SourceFor derives a per-image random source.
func SourceFor(seed int64, d digest.Digest) *rand.Rand {
	return rand.New(rand.NewSource(seed ^ d.Seed())) //nolint:gosec // reproducible synthetic data
}

// Quote is the cost block attached to a severity prediction.
type Quote struct {
	Estimated  float64 `json:"estimated_cost"`
	Min        int     `json:"min_cost"`
	Max        int     `json:"max_cost"`
	Currency   string  `json:"currency"`
	Confidence float64 `json:"confidence"`
}

// ForPrediction quotes a cost for a predicted category. confidence is a
// percentage in [0,100]. Confident predictions get the range midpoint; others
// get the midpoint plus a uniform offset that widens as confidence drops.
func (e *Estimator) ForPrediction(c category.Category, confidence float64, r Uniform) Quote {
	minCost, maxCost := e.Range(c)
	lo, hi := float64(minCost), float64(maxCost)
	base := (lo + hi) / 2

	factor := clamp(confidence/100, 0, 1)
	v := base
	if factor <= confidentAbove {
		variance := (hi - lo) * (1 - factor) * spreadFactor
		v = base + (2*r.Float64()-1)*variance
	}

	return Quote{
		Estimated:  roundCents(clamp(v, lo, hi)),
		Min:        minCost,
		Max:        maxCost,
		Currency:   Currency,
		Confidence: roundCents(confidence),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
