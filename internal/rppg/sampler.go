package rppg

import (
	"image"

	"github.com/disintegration/imaging"
)

// ROILocator returns the region of a frame to sample, or ok=false to skip it.
type ROILocator interface {
	Locate(img image.Image) (roi image.Rectangle, ok bool)
}

// MeanGreen averages the green channel over roi. ok is false when roi does not
// overlap the frame.
func MeanGreen(img image.Image, roi image.Rectangle) (float64, bool) {
	roi = roi.Intersect(img.Bounds())
	if roi.Empty() {
		return 0, false
	}

	patch := imaging.Crop(img, roi)
	var sum float64
	n := 0
	for i := 1; i < len(patch.Pix); i += 4 {
		sum += float64(patch.Pix[i])
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// SampleFrame locates the forehead in img and reduces it to one sample.
func SampleFrame(loc ROILocator, img image.Image) (float64, bool) {
	roi, ok := loc.Locate(img)
	if !ok {
		return 0, false
	}
	return MeanGreen(img, roi)
}

// Sampler appends one sample per frame to its signal, in call order.
type Sampler struct {
	locator ROILocator
	signal  *RawSignal
}

// NewSampler binds a locator to the signal of one acquisition session.
func NewSampler(loc ROILocator, signal *RawSignal) *Sampler {
	return &Sampler{locator: loc, signal: signal}
}

// Process samples img. It reports whether a sample was appended; frames
// without a usable face are skipped silently.
func (s *Sampler) Process(img image.Image) (bool, error) {
	v, ok := SampleFrame(s.locator, img)
	if !ok {
		return false, nil
	}
	if _, err := s.signal.Append(v); err != nil {
		return false, err
	}
	return true, nil
}

// Signal returns the signal being filled.
func (s *Sampler) Signal() *RawSignal { return s.signal }
