// Package predict maps a heart-rate feature to the derived vitals reported to
// users: blood pressure, a calibrated heart rate and a stress label.
//
// The three predictors share one capability, Predictor, so callers can be
// exercised with stubs and the registry never knows how a model is built.
package predict

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// ErrNotReady is returned when predictions are requested before the models loaded.
var ErrNotReady = errors.New("models are not loaded")

// Output is the fixed-shape result of a predictor: numeric Values, a Label, or both.
type Output struct {
	Values []float64
	Label  string
}

// Predictor consumes one scalar feature.
type Predictor interface {
	Name() string
	Predict(feature float64) (Output, error)
}

// Curve is one piecewise-linear output of a regression model. Inputs outside
// the knots are clamped to the end values.
type Curve struct {
	Name string    `json:"name"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`

	fit interp.PiecewiseLinear
}

func (c *Curve) init() error {
	if len(c.X) < 2 {
		return fmt.Errorf("curve %q: need at least 2 knots, got %d", c.Name, len(c.X))
	}
	if len(c.X) != len(c.Y) {
		return fmt.Errorf("curve %q: %d x values but %d y values", c.Name, len(c.X), len(c.Y))
	}
	for i, v := range c.X {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(c.Y[i]) || math.IsInf(c.Y[i], 0) {
			return fmt.Errorf("curve %q: knot %d is not finite", c.Name, i)
		}
		if i > 0 && v <= c.X[i-1] {
			return fmt.Errorf("curve %q: x must be strictly increasing at knot %d", c.Name, i)
		}
	}
	return c.fit.Fit(c.X, c.Y)
}

// At evaluates the curve.
func (c *Curve) At(x float64) float64 { return c.fit.Predict(x) }

// Regressor holds one curve per output.
type Regressor struct {
	name    string
	Outputs []*Curve `json:"outputs"`
}

func (r *Regressor) init(name string, outputs int) error {
	r.name = name
	if len(r.Outputs) != outputs {
		return fmt.Errorf("%s model: expected %d outputs, got %d", name, outputs, len(r.Outputs))
	}
	for _, c := range r.Outputs {
		if err := c.init(); err != nil {
			return fmt.Errorf("%s model: %w", name, err)
		}
	}
	return nil
}

func (r *Regressor) Name() string { return r.name }

func (r *Regressor) Predict(feature float64) (Output, error) {
	if err := checkFeature(feature); err != nil {
		return Output{}, err
	}
	out := Output{Values: make([]float64, len(r.Outputs))}
	for i, c := range r.Outputs {
		out.Values[i] = c.At(feature)
	}
	return out, nil
}

// Class is one band of a threshold classifier. A nil UpTo closes the last band.
type Class struct {
	UpTo  *float64 `json:"upTo,omitempty"`
	Label string   `json:"label"`
}

// Classifier assigns the label of the first band whose upper bound exceeds the feature.
type Classifier struct {
	name    string
	Classes []Class `json:"classes"`
}

func (c *Classifier) init(name string) error {
	c.name = name
	if len(c.Classes) == 0 {
		return fmt.Errorf("%s model: no classes", name)
	}
	for i, cl := range c.Classes {
		if cl.Label == "" {
			return fmt.Errorf("%s model: class %d has no label", name, i)
		}
		last := i == len(c.Classes)-1
		switch {
		case last && cl.UpTo != nil:
			return fmt.Errorf("%s model: last class must be unbounded", name)
		case !last && cl.UpTo == nil:
			return fmt.Errorf("%s model: class %d needs an upper bound", name, i)
		case !last && i > 0 && *cl.UpTo <= *c.Classes[i-1].UpTo:
			return fmt.Errorf("%s model: bounds must increase at class %d", name, i)
		}
	}
	return nil
}

func (c *Classifier) Name() string { return c.name }

func (c *Classifier) Predict(feature float64) (Output, error) {
	if err := checkFeature(feature); err != nil {
		return Output{}, err
	}
	for _, cl := range c.Classes {
		if cl.UpTo == nil || feature < *cl.UpTo {
			return Output{Label: cl.Label}, nil
		}
	}
	return Output{}, fmt.Errorf("%s model: no class for %v", c.name, feature)
}

func checkFeature(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("heart rate feature must be finite and positive, got %v", v)
	}
	return nil
}
