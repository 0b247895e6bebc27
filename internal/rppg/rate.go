package rppg

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Placeholder range used when no rate can be derived from peaks.
const (
	FallbackMinBPM = 60.0
	FallbackMaxBPM = 100.0
)

// ErrTooFewPeaks means fewer than two beats were found, so no interval exists.
var ErrTooFewPeaks = errors.New("fewer than two peaks found")

// RateFromPeaks returns 60 / mean(inter-peak interval in seconds).
func RateFromPeaks(peaks []int, rate float64) (float64, error) {
	if len(peaks) < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrTooFewPeaks, len(peaks))
	}
	intervals := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals[i-1] = float64(peaks[i]-peaks[i-1]) / rate
	}
	mean := stat.Mean(intervals, nil)
	if mean <= 0 {
		return 0, fmt.Errorf("non-positive mean interval %v", mean)
	}
	return 60.0 / mean, nil
}

// FallbackPolicy supplies the heart rate reported when estimation from peaks
// is impossible. The reason is passed for policies that care.
type FallbackPolicy interface {
	Fallback(reason Reason) float64
}

// UniformFallback draws uniformly from [Min, Max]. It is safe for concurrent use.
type UniformFallback struct {
	Min, Max float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformFallback returns the default [60, 100] policy with a random seed.
func NewUniformFallback() *UniformFallback {
	return &UniformFallback{
		Min: FallbackMinBPM,
		Max: FallbackMaxBPM,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewSeededFallback returns the default range with a reproducible sequence.
func NewSeededFallback(seed uint64) *UniformFallback {
	return &UniformFallback{
		Min: FallbackMinBPM,
		Max: FallbackMaxBPM,
		rng: rand.New(rand.NewPCG(seed, seed)),
	}
}

// Fallback implements FallbackPolicy.
func (u *UniformFallback) Fallback(Reason) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.rng == nil {
		u.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return u.Min + u.rng.Float64()*(u.Max-u.Min)
}

// FixedFallback always returns the same value.
type FixedFallback float64

// Fallback implements FallbackPolicy.
func (f FixedFallback) Fallback(Reason) float64 { return float64(f) }
