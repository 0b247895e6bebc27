package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Model file names inside a models directory.
const (
	BloodPressureFile = "bp_model.json"
	HeartRateFile     = "hr_model.json"
	StressFile        = "stress_model.json"
)

// Vitals are the rounded predictions returned to clients.
type Vitals struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	HeartRate int    `json:"heartRate"`
	Stress    string `json:"stress"`
}

// Registry is the process-wide set of predictors. It is built once and never
// reloaded; Ready is the only thing callers check before predicting.
type Registry struct {
	bp, hr, stress Predictor
}

// NewRegistry injects predictors directly. The registry is ready only if all
// three are present.
func NewRegistry(bp, hr, stress Predictor) *Registry {
	return &Registry{bp: bp, hr: hr, stress: stress}
}

// Load reads the three model files from dir. It fails on the first missing or
// invalid file.
func Load(dir string) (*Registry, error) {
	bp := &Regressor{}
	if err := readModel(filepath.Join(dir, BloodPressureFile), bp); err != nil {
		return nil, err
	}
	if err := bp.init("blood pressure", 2); err != nil {
		return nil, err
	}

	hr := &Regressor{}
	if err := readModel(filepath.Join(dir, HeartRateFile), hr); err != nil {
		return nil, err
	}
	if err := hr.init("heart rate", 1); err != nil {
		return nil, err
	}

	stress := &Classifier{}
	if err := readModel(filepath.Join(dir, StressFile), stress); err != nil {
		return nil, err
	}
	if err := stress.init("stress"); err != nil {
		return nil, err
	}

	return NewRegistry(bp, hr, stress), nil
}

func readModel(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse model %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Ready reports whether all predictors are loaded.
func (r *Registry) Ready() bool {
	return r != nil && r.bp != nil && r.hr != nil && r.stress != nil
}

// Predict runs the three predictors on the heart-rate feature. Any failure is
// returned as is; no value is ever substituted.
func (r *Registry) Predict(heartRate float64) (Vitals, error) {
	if !r.Ready() {
		return Vitals{}, ErrNotReady
	}
	if err := checkFeature(heartRate); err != nil {
		return Vitals{}, err
	}

	bp, err := r.bp.Predict(heartRate)
	if err != nil {
		return Vitals{}, fmt.Errorf("%s prediction failed: %w", r.bp.Name(), err)
	}
	if len(bp.Values) != 2 {
		return Vitals{}, fmt.Errorf("%s prediction returned %d values, want 2", r.bp.Name(), len(bp.Values))
	}

	hr, err := r.hr.Predict(heartRate)
	if err != nil {
		return Vitals{}, fmt.Errorf("%s prediction failed: %w", r.hr.Name(), err)
	}
	if len(hr.Values) != 1 {
		return Vitals{}, fmt.Errorf("%s prediction returned %d values, want 1", r.hr.Name(), len(hr.Values))
	}

	st, err := r.stress.Predict(heartRate)
	if err != nil {
		return Vitals{}, fmt.Errorf("%s prediction failed: %w", r.stress.Name(), err)
	}
	if st.Label == "" {
		return Vitals{}, errors.New(r.stress.Name() + " prediction returned no label")
	}

	for _, v := range append(bp.Values, hr.Values...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Vitals{}, fmt.Errorf("prediction is not finite: %v", v)
		}
	}

	return Vitals{
		Systolic:  round(bp.Values[0]),
		Diastolic: round(bp.Values[1]),
		HeartRate: round(hr.Values[0]),
		Stress:    st.Label,
	}, nil
}

// round rounds half to even.
func round(v float64) int { return int(math.RoundToEven(v)) }
