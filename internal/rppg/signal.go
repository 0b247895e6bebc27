// Package rppg turns a sequence of forehead colour samples into a heart-rate
// estimate: band-pass filtering, beat (peak) extraction and interval averaging.
package rppg

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
)

// DefaultSampleRate is substituted when a source cannot report a usable frame rate.
const DefaultSampleRate = 30.0

// ErrSealed is returned when appending to a RawSignal after acquisition ended.
var ErrSealed = errors.New("raw signal is sealed")

// NormalizeSampleRate returns rate if it is a positive finite number and
// DefaultSampleRate otherwise, logging the substitution.
func NormalizeSampleRate(rate float64, logger *slog.Logger) float64 {
	if rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate) {
		return rate
	}
	if logger != nil {
		logger.Warn("invalid sample rate, using default", "reported", rate, "default", DefaultSampleRate)
	}
	return DefaultSampleRate
}

// RawSignal accumulates one sample per processed frame for a single
// acquisition run. Appends are ordered; once sealed the signal is immutable.
type RawSignal struct {
	id   uuid.UUID
	rate float64

	mu      sync.Mutex
	samples []float64
	sealed  bool
}

// NewRawSignal starts an empty signal. The rate is normalised so that it is
// always positive.
func NewRawSignal(rate float64, logger *slog.Logger) *RawSignal {
	return &RawSignal{
		id:   uuid.New(),
		rate: NormalizeSampleRate(rate, logger),
	}
}

// NewRawSignalFrom builds an already sealed signal from existing samples.
func NewRawSignalFrom(samples []float64, rate float64, logger *slog.Logger) *RawSignal {
	s := NewRawSignal(rate, logger)
	s.samples = append([]float64(nil), samples...)
	s.sealed = true
	return s
}

// ID identifies the acquisition run.
func (s *RawSignal) ID() uuid.UUID { return s.id }

// Rate is the sample rate in samples per second.
func (s *RawSignal) Rate() float64 { return s.rate }

// Append adds v at index Len() and returns that index.
func (s *RawSignal) Append(v float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return 0, ErrSealed
	}
	s.samples = append(s.samples, v)
	return len(s.samples) - 1, nil
}

// Seal ends acquisition. Further appends fail.
func (s *RawSignal) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether acquisition has ended.
func (s *RawSignal) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Len returns the number of samples.
func (s *RawSignal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Samples returns a copy of the samples in temporal order.
func (s *RawSignal) Samples() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.samples...)
}
