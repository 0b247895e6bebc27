package rppg

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
)

// Source records how an estimate was produced.
type Source string

const (
	SourcePeaks    Source = "peaks"
	SourceFallback Source = "fallback"
)

// Reason explains why the fallback fired.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonSignalTooShort  Reason = "signal_too_short"
	ReasonTooFewPeaks     Reason = "too_few_peaks"
	ReasonProcessingError Reason = "processing_error"
)

// Estimate is the result of one estimation run. Filtered and Peaks are set
// whenever the corresponding stage completed, even on fallback.
type Estimate struct {
	RunID      uuid.UUID `json:"runId"`
	BPM        float64   `json:"bpm"`
	Source     Source    `json:"source"`
	Reason     Reason    `json:"reason,omitempty"`
	Err        error     `json:"-"`
	SampleRate float64   `json:"sampleRate"`
	Samples    int       `json:"samples"`
	Filtered   []float64 `json:"-"`
	Peaks      []int     `json:"peaks,omitempty"`
}

// IsFallback reports whether BPM is a placeholder.
func (e Estimate) IsFallback() bool { return e.Source == SourceFallback }

// Estimator runs filter, peak extraction and rate estimation over a sealed
// signal. It holds no per-run state and may be shared.
type Estimator struct {
	// Fallback supplies the placeholder rate. Nil means the default uniform policy.
	Fallback FallbackPolicy
	// SmoothWindow applies a moving average between filtering and peak
	// extraction when greater than one.
	SmoothWindow int
	Logger       *slog.Logger
}

// NewEstimator returns an estimator with the default fallback and no smoothing.
func NewEstimator(logger *slog.Logger) *Estimator {
	return &Estimator{Fallback: NewUniformFallback(), Logger: logger}
}

// Run estimates the heart rate of signal. It never fails: any problem in
// filtering or peak extraction yields a fallback estimate whose Reason and Err
// tell the cases apart.
func (e *Estimator) Run(signal *RawSignal) Estimate {
	return e.estimate(signal.ID(), signal.Samples(), signal.Rate())
}

// EstimateSamples is Run for a plain slice, used by streaming callers.
func (e *Estimator) EstimateSamples(samples []float64, rate float64) Estimate {
	return e.estimate(uuid.New(), samples, NormalizeSampleRate(rate, e.Logger))
}

func (e *Estimator) estimate(id uuid.UUID, samples []float64, rate float64) Estimate {
	est := Estimate{RunID: id, SampleRate: rate, Samples: len(samples)}

	bpm, err := e.process(samples, rate, &est)
	if err == nil {
		est.BPM = bpm
		est.Source = SourcePeaks
		return est
	}

	est.Source = SourceFallback
	est.Err = err
	switch {
	case errors.Is(err, ErrSignalTooShort):
		est.Reason = ReasonSignalTooShort
	case errors.Is(err, ErrTooFewPeaks):
		est.Reason = ReasonTooFewPeaks
	default:
		est.Reason = ReasonProcessingError
	}
	est.BPM = e.fallback().Fallback(est.Reason)

	if e.Logger != nil {
		e.Logger.Warn("heart rate fallback",
			"run", id, "reason", est.Reason, "error", err, "samples", len(samples), "bpm", est.BPM)
	}
	return est
}

func (e *Estimator) process(samples []float64, rate float64, est *Estimate) (bpm float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during signal processing: %v", r)
		}
	}()

	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("sample %d is not finite", i)
		}
	}

	filtered, err := Bandpass(samples, rate)
	if err != nil {
		return 0, err
	}
	if e.SmoothWindow > 1 {
		filtered = MovingAverage(filtered, e.SmoothWindow)
	}
	est.Filtered = filtered

	peaks := FindPeaks(filtered, MinPeakDistance(rate))
	est.Peaks = peaks

	bpm, err = RateFromPeaks(peaks, rate)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm <= 0 {
		return 0, fmt.Errorf("invalid heart rate %v", bpm)
	}
	return bpm, nil
}

var defaultFallback = NewUniformFallback()

func (e *Estimator) fallback() FallbackPolicy {
	if e.Fallback == nil {
		return defaultFallback
	}
	return e.Fallback
}
