package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/vitals/internal/face"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/andresmejia3/vitals/internal/video"
	"github.com/andresmejia3/vitals/internal/worker"
	"github.com/schollz/progressbar/v3"
)

// acquisition is the outcome of decoding and sampling one video.
type acquisition struct {
	Path    string
	VideoID string
	FPS     float64
	Signal  *rppg.RawSignal
	Stats   worker.Stats
}

// validateInput ensures the video path is usable before heavy processes start.
func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail("Input file does not exist", err, nil)
		}
		return fail("Unable to access input file", err, nil)
	}
	if info.IsDir() {
		return fail("Input path is a directory, expected a video file", nil, nil)
	}
	return nil
}

// newLocator builds the face locator from the configured cascade.
func newLocator() (*face.Locator, error) {
	det, err := face.LoadPigoDetector(cfg.CascadePath, cfg.Pigo())
	if err != nil {
		return nil, fail("Failed to load face detector", err, nil)
	}
	return face.NewLocator(det, logger), nil
}

// probeRate asks ffprobe for the frame rate, falling back to the default with
// a warning when it is unknown.
func probeRate(ctx context.Context, path string) (float64, error) {
	fps, err := video.ProbeFPS(ctx, path)
	if errors.Is(err, video.ErrNoVideoStream) {
		return 0, fail("Input has no video stream", err, nil)
	}
	if err != nil {
		logger.Warn("could not determine frame rate", "path", path, "error", err)
		fps = 0
	}
	if fps <= 0 {
		logger.Warn("invalid sample rate, using default", "reported", fps, "default", cfg.DefaultSampleRate)
		fps = cfg.DefaultSampleRate
	}
	return fps, nil
}

// acquire decodes path with ffmpeg and turns it into a sealed RawSignal,
// fanning frames out to engines when more than one is requested.
func acquire(ctx context.Context, path string, engines int, loc *face.Locator, showProgress bool) (*acquisition, error) {
	if err := validateInput(path); err != nil {
		return nil, err
	}
	videoID, err := video.GenerateVideoID(path)
	if err != nil {
		return nil, fail("Failed to generate video ID", err, nil)
	}
	fps, err := probeRate(ctx, path)
	if err != nil {
		return nil, err
	}

	var onResult func(types.SampleResult)
	var bar *progressbar.ProgressBar
	if showProgress {
		total := video.GetTotalFrames(ctx, path, logger)
		if total <= 0 {
			// Unknown total renders as a spinner
			total = -1
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("🔍 Sampling frames"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		onResult = func(types.SampleResult) { _ = bar.Add(1) }
	}

	acq := &acquisition{Path: path, VideoID: videoID, FPS: fps, Signal: rppg.NewRawSignal(fps, logger)}
	dec := video.NewDecoder(ctx, path)

	if engines <= 1 {
		acq.Stats, err = worker.Sequential(ctx, loc, dec.Run, acq.Signal, logger, onResult)
	} else {
		pool := make([]*worker.Engine, engines)
		for i := range pool {
			pool[i] = worker.NewEngine(i, loc, logger)
		}
		acq.Stats, err = worker.Acquire(ctx, pool, dec.Run, acq.Signal, onResult)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return acq, fail("Failed to decode video", err, dec.Cmd)
	}

	logger.Info("acquisition complete", "path", path, "fps", fps,
		"frames", acq.Stats.Frames, "samples", acq.Stats.Samples, "skipped", acq.Stats.Skipped)
	return acq, nil
}

// newEstimator applies the configured fallback and smoothing.
func newEstimator(smooth int) *rppg.Estimator {
	e := rppg.NewEstimator(logger)
	e.Fallback = cfg.Fallback()
	e.SmoothWindow = smooth
	return e
}
