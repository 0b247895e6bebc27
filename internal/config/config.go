package config

import (
	"encoding/json"
	"os"

	"github.com/andresmejia3/vitals/internal/face"
	"github.com/andresmejia3/vitals/internal/live"
	"github.com/andresmejia3/vitals/internal/rppg"
)

// Config holds runtime configuration for acquisition and estimation.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	// Face detection
	CascadePath  string  `json:"cascade_path"`
	MinFaceSize  int     `json:"min_face_size"`
	MaxFaceSize  int     `json:"max_face_size"`
	ShiftFactor  float64 `json:"shift_factor"`
	ScaleFactor  float64 `json:"scale_factor"`
	MinQuality   float64 `json:"min_quality"`
	IoUThreshold float64 `json:"iou_threshold"`

	// Pipeline
	Engines           int     `json:"engines"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	SmoothWindow      int     `json:"smooth_window"`
	LiveWindowSeconds float64 `json:"live_window_seconds"`

	// Fallback
	FallbackMin  float64 `json:"fallback_min"`
	FallbackMax  float64 `json:"fallback_max"`
	FallbackSeed *uint64 `json:"fallback_seed,omitempty"`

	ModelsDir string `json:"models_dir"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	d := face.DefaultPigoConfig()
	return &Config{
		CascadePath:       "cascade/facefinder",
		MinFaceSize:       d.MinSize,
		MaxFaceSize:       d.MaxSize,
		ShiftFactor:       d.ShiftFactor,
		ScaleFactor:       d.ScaleFactor,
		MinQuality:        float64(d.MinQuality),
		IoUThreshold:      d.IoUThreshold,
		Engines:           1,
		DefaultSampleRate: rppg.DefaultSampleRate,
		SmoothWindow:      0,
		LiveWindowSeconds: live.DefaultWindowSeconds,
		FallbackMin:       rppg.FallbackMinBPM,
		FallbackMax:       rppg.FallbackMaxBPM,
		ModelsDir:         "models",
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.MinFaceSize <= 0 {
		c.MinFaceSize = d.MinFaceSize
	}
	if c.MaxFaceSize <= 0 || c.MaxFaceSize < c.MinFaceSize {
		c.MaxFaceSize = max(d.MaxFaceSize, c.MinFaceSize)
	}
	if c.ShiftFactor <= 0 || c.ShiftFactor > 1 {
		c.ShiftFactor = d.ShiftFactor
	}
	if c.ScaleFactor <= 1 {
		c.ScaleFactor = d.ScaleFactor
	}
	if c.MinQuality < 0 {
		c.MinQuality = d.MinQuality
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		c.IoUThreshold = d.IoUThreshold
	}
	if c.Engines < 1 {
		c.Engines = 1
	}
	if c.DefaultSampleRate <= 0 {
		c.DefaultSampleRate = d.DefaultSampleRate
	}
	if c.SmoothWindow < 0 {
		c.SmoothWindow = 0
	}
	if c.LiveWindowSeconds <= 0 {
		c.LiveWindowSeconds = d.LiveWindowSeconds
	}
	if c.FallbackMin <= 0 || c.FallbackMax < c.FallbackMin {
		c.FallbackMin = d.FallbackMin
		c.FallbackMax = d.FallbackMax
	}
	return nil
}

// Pigo returns the detector settings.
func (c *Config) Pigo() face.PigoConfig {
	return face.PigoConfig{
		MinSize:      c.MinFaceSize,
		MaxSize:      c.MaxFaceSize,
		ShiftFactor:  c.ShiftFactor,
		ScaleFactor:  c.ScaleFactor,
		MinQuality:   float32(c.MinQuality),
		IoUThreshold: c.IoUThreshold,
	}
}

// Fallback returns the placeholder-rate policy, seeded when FallbackSeed is set.
func (c *Config) Fallback() *rppg.UniformFallback {
	var f *rppg.UniformFallback
	if c.FallbackSeed != nil {
		f = rppg.NewSeededFallback(*c.FallbackSeed)
	} else {
		f = rppg.NewUniformFallback()
	}
	f.Min, f.Max = c.FallbackMin, c.FallbackMax
	return f
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
