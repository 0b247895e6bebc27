package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/vitals/internal/predict"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPrintReadingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printReadings(&buf, nil)
	assert.Equal(t, "No readings found in database.\n", buf.String())
}

func TestPrintReadings(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	readings := []store.Reading{
		{
			RunID:     id,
			VideoPath: "/videos/a.mp4",
			BPM:       72.04,
			Source:    "peaks",
			Vitals:    &predict.Vitals{Systolic: 120, Diastolic: 78, HeartRate: 72, Stress: "low"},
			CreatedAt: time.Now(),
		},
		{
			RunID:          uuid.New(),
			BPM:            81,
			Source:         "fallback",
			FallbackReason: "too_few_peaks",
			CreatedAt:      time.Now(),
		},
	}

	var buf bytes.Buffer
	printReadings(&buf, readings)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "RUN")
	assert.Contains(t, lines[2], "0f8fad5b")
	assert.Contains(t, lines[2], "72.0")
	assert.Contains(t, lines[2], "120/78")
	assert.Contains(t, lines[2], "/videos/a.mp4")
	assert.Contains(t, lines[3], "fallback (too_few_peaks)")
}

func TestNewReading(t *testing.T) {
	est := rppg.Estimate{
		RunID:      uuid.New(),
		BPM:        64,
		Source:     rppg.SourceFallback,
		Reason:     rppg.ReasonSignalTooShort,
		SampleRate: 30,
		Samples:    12,
	}
	r := newReading(est, "vid", nil)

	assert.Equal(t, est.RunID, r.RunID)
	assert.Equal(t, "vid", r.VideoID)
	assert.Equal(t, "fallback", r.Source)
	assert.Equal(t, "signal_too_short", r.FallbackReason)
	assert.Equal(t, 12, r.SampleCount)
	assert.Zero(t, r.PeakCount)
	assert.Nil(t, r.Vitals)
}
