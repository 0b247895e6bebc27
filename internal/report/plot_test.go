package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineEstimate(t *testing.T) rppg.Estimate {
	t.Helper()
	raw := make([]float64, 300)
	for i := range raw {
		raw[i] = 100 + 2*math.Sin(2*math.Pi*1.2*float64(i)/30)
	}
	est := rppg.NewEstimator(nil).EstimateSamples(raw, 30)
	require.Equal(t, rppg.SourcePeaks, est.Source)
	return est
}

func TestWritePlotPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.png")
	require.NoError(t, WritePlot(path, sineEstimate(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "expected a PNG file")
}

func TestNewPlotTitle(t *testing.T) {
	est := sineEstimate(t)
	p, err := NewPlot(est)
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "BPM")
	assert.NotContains(t, p.Title.Text, "fallback")

	est.Source = rppg.SourceFallback
	est.Reason = rppg.ReasonTooFewPeaks
	p, err = NewPlot(est)
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "fallback: too_few_peaks")
}

func TestWritePlotWithoutSignal(t *testing.T) {
	est := rppg.NewEstimator(nil).EstimateSamples([]float64{1, 2, 3}, 30)
	err := WritePlot(filepath.Join(t.TempDir(), "x.png"), est)
	assert.ErrorIs(t, err, ErrNothingToPlot)
}
