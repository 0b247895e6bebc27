package rppg

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Pass band in Hz (45-240 beats per minute) and prototype order.
const (
	LowCutHz    = 0.75
	HighCutHz   = 4.0
	FilterOrder = 3
)

// MinSamples is the shortest signal Bandpass accepts with the fixed design.
const MinSamples = 3*(2*FilterOrder+1) + 1

// ErrSignalTooShort means the signal is not longer than the filter's padding
// length, so zero-phase filtering cannot run.
var ErrSignalTooShort = errors.New("signal too short for filtering")

// Coefficients is a digital transfer function b(z)/a(z) with a[0] == 1.
type Coefficients struct {
	B []float64
	A []float64
}

// PadLen is the number of samples reflected at each edge before filtering,
// and the length a signal must exceed.
func (c Coefficients) PadLen() int {
	return 3 * max(len(c.A), len(c.B))
}

// ButterworthBandpass designs a digital Butterworth band-pass filter of the
// given prototype order (2*order poles) via the bilinear transform. Cutoffs are
// in Hz and must satisfy 0 < low < high < rate/2.
func ButterworthBandpass(order int, low, high, rate float64) (Coefficients, error) {
	nyquist := 0.5 * rate
	if order < 1 {
		return Coefficients{}, fmt.Errorf("invalid filter order %d", order)
	}
	if low <= 0 || high <= low || high >= nyquist {
		return Coefficients{}, fmt.Errorf("cutoffs %.3f-%.3f Hz invalid for sample rate %.3f Hz", low, high, rate)
	}

	// Pre-warp the normalised band edges (fs = 2 convention).
	const fs = 2.0
	wl := 2 * fs * math.Tan(math.Pi*(low/nyquist)/fs)
	wh := 2 * fs * math.Tan(math.Pi*(high/nyquist)/fs)
	bw := wh - wl
	w0 := math.Sqrt(wl * wh)

	// Analogue low-pass prototype: poles on the left unit half-circle.
	proto := make([]complex128, order)
	for k := range proto {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		proto[k] = cmplx.Exp(complex(0, theta))
	}

	// Low-pass to band-pass: each prototype pole splits into two.
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		p = p * complex(bw/2, 0)
		d := cmplx.Sqrt(p*p - complex(w0*w0, 0))
		poles = append(poles, p+d)
	}
	for _, p := range proto {
		p = p * complex(bw/2, 0)
		d := cmplx.Sqrt(p*p - complex(w0*w0, 0))
		poles = append(poles, p-d)
	}
	zeros := make([]complex128, order) // at the origin
	gain := math.Pow(bw, float64(order))

	// Bilinear transform.
	fs2 := complex(2*fs, 0)
	num, den := complex(1, 0), complex(1, 0)
	dz := make([]complex128, 0, 2*order)
	for _, z := range zeros {
		num *= fs2 - z
		dz = append(dz, (fs2+z)/(fs2-z))
	}
	dp := make([]complex128, len(poles))
	for i, p := range poles {
		den *= fs2 - p
		dp[i] = (fs2 + p) / (fs2 - p)
	}
	for len(dz) < len(dp) {
		dz = append(dz, -1)
	}
	gain *= real(num / den)

	b := realPoly(dz)
	for i := range b {
		b[i] *= gain
	}
	return Coefficients{B: b, A: realPoly(dp)}, nil
}

// realPoly expands prod(x - r) and returns the real parts of its coefficients,
// highest power first.
func realPoly(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// Bandpass filters a complete raw signal with the fixed heart-rate band and
// returns a zero-phase result of the same length. It fails with
// ErrSignalTooShort instead of returning a degraded result.
func Bandpass(samples []float64, rate float64) ([]float64, error) {
	c, err := ButterworthBandpass(FilterOrder, LowCutHz, HighCutHz, rate)
	if err != nil {
		return nil, err
	}
	return FiltFilt(c, samples)
}

// FiltFilt runs the filter forward and backward over x with odd reflection at
// both edges and steady-state initial conditions.
func FiltFilt(c Coefficients, x []float64) ([]float64, error) {
	pad := c.PadLen()
	n := len(x)
	if n <= pad {
		return nil, fmt.Errorf("%w: length=%d, required>%d", ErrSignalTooShort, n, pad)
	}

	zi, err := steadyState(c)
	if err != nil {
		return nil, err
	}

	// Remove a constant offset first. The band-pass output is unchanged but
	// flat input stays exactly flat.
	offset := x[0]
	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, (x[0]-offset)*2-(x[i]-offset))
	}
	for _, v := range x {
		ext = append(ext, v-offset)
	}
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, (x[n-1]-offset)*2-(x[i]-offset))
	}

	y := lfilter(c, ext, scaled(zi, ext[0]))
	reverse(y)
	y = lfilter(c, y, scaled(zi, y[0]))
	reverse(y)

	return y[pad : pad+n], nil
}

// lfilter applies the filter in transposed direct form II with initial state z.
func lfilter(c Coefficients, x, z []float64) []float64 {
	b, a := c.B, c.A
	order := len(a) - 1
	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for k := 0; k < order-1; k++ {
			z[k] = b[k+1]*xi + z[k+1] - a[k+1]*yi
		}
		z[order-1] = b[order]*xi - a[order]*yi
		y[i] = yi
	}
	return y
}

// steadyState solves (I - Aᵀ) zi = b[1:] - a[1:]*b[0], where A is the
// companion matrix of a. The result is the filter state for a unit step.
func steadyState(c Coefficients) ([]float64, error) {
	n := len(c.A) - 1
	if n < 1 || len(c.B) != len(c.A) {
		return nil, fmt.Errorf("unsupported filter shape: len(b)=%d len(a)=%d", len(c.B), len(c.A))
	}

	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
		m.Set(i, 0, m.At(i, 0)+c.A[i+1])
		if i+1 < n {
			m.Set(i, i+1, -1)
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, c.B[i+1]-c.A[i+1]*c.B[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("failed to solve filter initial conditions: %w", err)
	}
	return zi.RawVector().Data, nil
}

func scaled(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * k
	}
	return out
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
