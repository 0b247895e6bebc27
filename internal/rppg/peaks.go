package rppg

import (
	"math"
	"sort"
)

// MinPeakSeconds is the shortest allowed time between two beats.
const MinPeakSeconds = 0.5

// MinPeakDistance converts MinPeakSeconds to a whole number of samples,
// rounding down, with a floor of one sample.
func MinPeakDistance(rate float64) int {
	d := int(math.Floor(MinPeakSeconds * rate))
	if d < 1 {
		return 1
	}
	return d
}

// localMaxima returns one index per local maximum of x. A maximum may be a
// plateau of equal values; it is represented by its leftmost index. Maxima
// touching either end of x are not counted.
func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	last := len(x) - 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, i)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// FindPeaks returns the strictly increasing indices of the local maxima of x
// such that every pair is at least distance samples apart. Where two maxima
// are closer, the higher one survives; equal heights keep the earlier index.
// No amplitude threshold is applied.
func FindPeaks(x []float64, distance int) []int {
	candidates := localMaxima(x)
	if distance <= 1 || len(candidates) < 2 {
		return candidates
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[candidates[order[a]]] > x[candidates[order[b]]]
	})

	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}
	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && candidates[j]-candidates[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(candidates) && candidates[k]-candidates[j] < distance; k++ {
			keep[k] = false
		}
	}

	peaks := make([]int, 0, len(candidates))
	for i, ok := range keep {
		if ok {
			peaks = append(peaks, candidates[i])
		}
	}
	return peaks
}

// MovingAverage smooths x with a box kernel of the given width and returns a
// result of the same length, centred like a "same" convolution with zero
// padding. width <= 1 returns a copy.
func MovingAverage(x []float64, width int) []float64 {
	out := make([]float64, len(x))
	if width <= 1 {
		copy(out, x)
		return out
	}
	shift := (width - 1) / 2
	for i := range x {
		var sum float64
		for k := 0; k < width; k++ {
			j := i + shift - k
			if j >= 0 && j < len(x) {
				sum += x[j]
			}
		}
		out[i] = sum / float64(width)
	}
	return out
}
