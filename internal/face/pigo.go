package face

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// PigoConfig tunes the cascade scan.
type PigoConfig struct {
	MinSize      int     // smallest face side in pixels
	MaxSize      int     // largest face side in pixels
	ShiftFactor  float64 // window shift relative to its size
	ScaleFactor  float64 // scale step between pyramid levels
	MinQuality   float32 // detections scoring below this are dropped
	IoUThreshold float64 // clustering overlap threshold
}

// DefaultPigoConfig returns the settings used for webcam-distance faces.
func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		MinSize:      60,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		MinQuality:   5.0,
		IoUThreshold: 0.2,
	}
}

// PigoDetector runs the pigo pixel-intensity-comparison cascade. The unpacked
// classifier is read-only, so one detector may serve several engines.
type PigoDetector struct {
	classifier *pigo.Pigo
	cfg        PigoConfig
}

// LoadPigoDetector reads and unpacks a pigo face cascade ("facefinder").
func LoadPigoDetector(cascadePath string, cfg PigoConfig) (*PigoDetector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewPigoDetector(data, cfg)
}

// NewPigoDetector unpacks an in-memory cascade.
func NewPigoDetector(cascade []byte, cfg PigoConfig) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier, cfg: cfg}, nil
}

// Detect returns the clustered detections above MinQuality, in the order the
// classifier produced them.
func (d *PigoDetector) Detect(img image.Image) ([]Rect, error) {
	// Normalise to a zero-origin NRGBA so rows/cols match the pixel slice.
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return nil, nil
	}

	params := pigo.CascadeParams{
		MinSize:     d.cfg.MinSize,
		MaxSize:     d.cfg.MaxSize,
		ShiftFactor: d.cfg.ShiftFactor,
		ScaleFactor: d.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.cfg.IoUThreshold)

	origin := img.Bounds().Min
	var faces []Rect
	for _, det := range dets {
		if det.Q < d.cfg.MinQuality {
			continue
		}
		// pigo reports the box centre (Row, Col) and its side length (Scale).
		faces = append(faces, Rect{
			X: origin.X + det.Col - det.Scale/2,
			Y: origin.Y + det.Row - det.Scale/2,
			W: det.Scale,
			H: det.Scale,
		})
	}
	return faces, nil
}
