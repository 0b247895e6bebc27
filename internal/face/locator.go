// Package face finds a face in a frame and derives the forehead region sampled
// for the pulse signal.
package face

import (
	"image"
	"log/slog"
)

// Rect is an axis-aligned box given by its top-left corner and size.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W*H, or 0 for degenerate rectangles.
func (r Rect) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Detector finds face candidates in a frame. Implementations must return
// candidates in a stable order for identical input.
type Detector interface {
	Detect(img image.Image) ([]Rect, error)
}

// Forehead proportions relative to the face box.
const (
	foreheadMarginX = 0.2
	foreheadOffsetY = 0.1
	foreheadWidth   = 0.6
	foreheadHeight  = 0.2
)

// Forehead derives the forehead sub-rectangle of a face box. Offsets and sizes
// are truncated toward zero.
func Forehead(f Rect) Rect {
	return Rect{
		X: f.X + int(foreheadMarginX*float64(f.W)),
		Y: f.Y + int(foreheadOffsetY*float64(f.H)),
		W: int(foreheadWidth * float64(f.W)),
		H: int(foreheadHeight * float64(f.H)),
	}
}

// Locator picks one face per frame and returns its forehead region clipped to
// the frame.
type Locator struct {
	detector Detector
	logger   *slog.Logger
}

// NewLocator wraps a detector. A nil logger discards diagnostics.
func NewLocator(d Detector, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Locator{detector: d, logger: logger}
}

// Locate returns the forehead region of the first detected face. ok is false
// when no face is found, the detector fails, or the clipped region is empty;
// such frames are skipped by the caller.
func (l *Locator) Locate(img image.Image) (roi image.Rectangle, ok bool) {
	faces, err := l.detector.Detect(img)
	if err != nil {
		l.logger.Debug("face detection failed, skipping frame", "error", err)
		return image.Rectangle{}, false
	}
	if len(faces) == 0 {
		return image.Rectangle{}, false
	}

	roi = Forehead(faces[0]).Image().Intersect(img.Bounds())
	if roi.Empty() {
		l.logger.Debug("forehead region has zero area", "face", faces[0])
		return image.Rectangle{}, false
	}
	return roi, true
}
