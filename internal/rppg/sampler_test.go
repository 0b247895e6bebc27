package rppg

import (
	"bytes"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLocator struct {
	roi image.Rectangle
	ok  bool
}

func (f fixedLocator) Locate(image.Image) (image.Rectangle, bool) { return f.roi, f.ok }

func paintedFrame(w, h int, bg, patch color.NRGBA, area image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := bg
			if (image.Point{X: x, Y: y}).In(area) {
				c = patch
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestMeanGreen(t *testing.T) {
	area := image.Rect(10, 10, 20, 20)
	img := paintedFrame(40, 40, color.NRGBA{R: 255, G: 10, B: 255, A: 255}, color.NRGBA{R: 0, G: 200, B: 0, A: 255}, area)

	v, ok := MeanGreen(img, area)
	require.True(t, ok)
	assert.Equal(t, 200.0, v)

	// Half inside the patch, half outside.
	v, ok = MeanGreen(img, image.Rect(15, 10, 25, 20))
	require.True(t, ok)
	assert.Equal(t, 105.0, v)

	_, ok = MeanGreen(img, image.Rect(50, 50, 60, 60))
	assert.False(t, ok)

	_, ok = MeanGreen(img, image.Rect(5, 5, 5, 9))
	assert.False(t, ok)
}

func TestMeanGreenOffsetBounds(t *testing.T) {
	base := paintedFrame(40, 40, color.NRGBA{G: 0, A: 255}, color.NRGBA{G: 100, A: 255}, image.Rect(20, 20, 30, 30))
	sub := base.SubImage(image.Rect(20, 20, 40, 40))

	v, ok := MeanGreen(sub, image.Rect(20, 20, 30, 30))
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestSamplerAppendsInOrder(t *testing.T) {
	area := image.Rect(0, 0, 4, 4)
	sig := NewRawSignal(30, nil)

	s := NewSampler(fixedLocator{roi: area, ok: true}, sig)
	for _, g := range []uint8{10, 20, 30} {
		img := paintedFrame(8, 8, color.NRGBA{A: 255}, color.NRGBA{G: g, A: 255}, area)
		added, err := s.Process(img)
		require.NoError(t, err)
		require.True(t, added)
	}

	skip := NewSampler(fixedLocator{ok: false}, sig)
	added, err := skip.Process(image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []float64{10, 20, 30}, sig.Samples())
	assert.Same(t, sig, s.Signal())
}

func TestRawSignalSeal(t *testing.T) {
	sig := NewRawSignal(25, nil)
	idx, err := sig.Append(1)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	idx, err = sig.Append(2)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	sig.Seal()
	assert.True(t, sig.Sealed())
	_, err = sig.Append(3)
	assert.ErrorIs(t, err, ErrSealed)
	assert.Equal(t, 2, sig.Len())

	// Samples returns a copy.
	out := sig.Samples()
	out[0] = 99
	assert.Equal(t, []float64{1, 2}, sig.Samples())
}

func TestNormalizeSampleRate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Equal(t, 29.97, NormalizeSampleRate(29.97, logger))
	assert.Empty(t, buf.String())

	for _, bad := range []float64{0, -5} {
		assert.Equal(t, DefaultSampleRate, NormalizeSampleRate(bad, logger))
	}
	assert.True(t, strings.Contains(buf.String(), "invalid sample rate"))

	assert.Equal(t, DefaultSampleRate, NewRawSignal(-1, nil).Rate())
}
