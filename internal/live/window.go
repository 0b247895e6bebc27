// Package live keeps the most recent stretch of a streaming sample feed and
// estimates over it.
package live

import (
	"log/slog"
	"math"
	"sync"

	"github.com/andresmejia3/vitals/internal/rppg"
)

// DefaultWindowSeconds matches the capture length of the browser client.
const DefaultWindowSeconds = 20.0

// Window is a fixed-capacity buffer of the newest samples. Older samples are
// dropped as new ones arrive. It is safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	seconds  float64
	rate     float64
	capacity int
	samples  []float64
	logger   *slog.Logger
}

// NewWindow sizes the window for seconds of data at rate. A non-positive rate
// is replaced with rppg.DefaultSampleRate.
func NewWindow(seconds, rate float64, logger *slog.Logger) *Window {
	if seconds <= 0 {
		seconds = DefaultWindowSeconds
	}
	w := &Window{seconds: seconds, logger: logger}
	w.resize(rppg.NormalizeSampleRate(rate, logger))
	return w
}

func (w *Window) resize(rate float64) {
	w.rate = rate
	w.capacity = max(int(math.Round(w.seconds*rate)), rppg.MinSamples)
	w.samples = make([]float64, 0, w.capacity)
}

// SetRate switches the sample rate. Samples taken at a different rate cannot
// be mixed, so a change empties the window.
func (w *Window) SetRate(rate float64) {
	rate = rppg.NormalizeSampleRate(rate, w.logger)
	w.mu.Lock()
	defer w.mu.Unlock()
	if rate == w.rate {
		return
	}
	if w.logger != nil {
		w.logger.Info("sample rate changed, window reset", "from", w.rate, "to", rate)
	}
	w.resize(rate)
}

// Push appends samples, evicting the oldest beyond capacity.
func (w *Window) Push(samples ...float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(samples) >= w.capacity {
		w.samples = append(w.samples[:0], samples[len(samples)-w.capacity:]...)
		return
	}
	if over := len(w.samples) + len(samples) - w.capacity; over > 0 {
		w.samples = append(w.samples[:0], w.samples[over:]...)
	}
	w.samples = append(w.samples, samples...)
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.samples...)
}

// Len returns the number of buffered samples.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Capacity returns the maximum number of samples kept.
func (w *Window) Capacity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capacity
}

// Rate returns the current sample rate.
func (w *Window) Rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rate
}

// Ready reports whether the window is long enough to be filtered.
func (w *Window) Ready() bool {
	return w.Len() >= rppg.MinSamples
}

// Estimate runs e over a snapshot of the window. ok is false until the window
// is Ready; callers then wait for more data instead of reporting a fallback.
func (w *Window) Estimate(e *rppg.Estimator) (est rppg.Estimate, ok bool) {
	w.mu.Lock()
	samples := append([]float64(nil), w.samples...)
	rate := w.rate
	w.mu.Unlock()

	if len(samples) < rppg.MinSamples {
		return rppg.Estimate{}, false
	}
	return e.EstimateSamples(samples, rate), true
}
