package rppg

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinPeakDistance(t *testing.T) {
	tests := []struct {
		rate float64
		want int
	}{
		{30, 15},
		{29.97, 14},
		{25, 12},
		{60, 30},
		{1, 1},
		{0.5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MinPeakDistance(tt.rate), "rate=%v", tt.rate)
	}
}

func TestLocalMaxima(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		want []int
	}{
		{"empty", nil, nil},
		{"too short", []float64{1, 2}, nil},
		{"single", []float64{0, 1, 0}, []int{1}},
		{"edges ignored", []float64{5, 1, 2, 1, 5}, []int{2}},
		{"plateau leftmost", []float64{0, 2, 2, 2, 0}, []int{1}},
		{"plateau into edge", []float64{0, 1, 3, 3, 3}, nil},
		{"shoulder is not a peak", []float64{0, 2, 2, 3, 0}, []int{3}},
		{"flat", []float64{1, 1, 1, 1}, nil},
		{"several", []float64{0, 3, 1, 4, 1, 1, 2, 0}, []int{1, 3, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, localMaxima(tt.x))
		})
	}
}

func TestFindPeaks(t *testing.T) {
	tests := []struct {
		name     string
		x        []float64
		distance int
		want     []int
	}{
		{
			name:     "higher neighbour wins",
			x:        []float64{0, 1, 0, 5, 0, 2, 0},
			distance: 3,
			want:     []int{3},
		},
		{
			name:     "far apart both kept",
			x:        []float64{0, 1, 0, 0, 0, 2, 0},
			distance: 3,
			want:     []int{1, 5},
		},
		{
			name:     "tie keeps earlier",
			x:        []float64{0, 4, 0, 4, 0},
			distance: 3,
			want:     []int{1},
		},
		{
			name:     "suppressed peak does not suppress others",
			x:        []float64{0, 3, 0, 2, 0, 3, 0},
			distance: 3,
			want:     []int{1, 5},
		},
		{
			name:     "distance one keeps all",
			x:        []float64{0, 1, 0, 1, 0},
			distance: 1,
			want:     []int{1, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindPeaks(tt.x, tt.distance))
		})
	}
}

func TestFindPeaksSpacingProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		n := 10 + rng.IntN(400)
		x := make([]float64, n)
		for i := range x {
			// Quantised noise produces plenty of plateaus and ties.
			x[i] = float64(rng.IntN(8))
		}
		rate := 5 + rng.Float64()*55
		d := MinPeakDistance(rate)

		peaks := FindPeaks(x, d)
		for i := 1; i < len(peaks); i++ {
			if peaks[i]-peaks[i-1] < d {
				t.Fatalf("trial %d: peaks %d and %d closer than %d", trial, peaks[i-1], peaks[i], d)
			}
		}
	}
}

func TestMovingAverage(t *testing.T) {
	x := []float64{3, 6, 9, 12}

	assert.Equal(t, []float64{3, 6, 9, 7}, MovingAverage(x, 3))
	assert.Equal(t, x, MovingAverage(x, 1))
	assert.Equal(t, x, MovingAverage(x, 0))

	// Even widths follow the same centring as a "same" convolution.
	assert.Equal(t, []float64{1.5, 4.5, 7.5, 10.5}, MovingAverage(x, 2))
}
