package worker

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/andresmejia3/vitals/internal/video"
	"github.com/disintegration/imaging"
)

// Sequential samples every frame on the calling goroutine. It is the
// single-engine path: no re-ordering is needed because frames arrive in order.
// The signal is sealed on return.
func Sequential(ctx context.Context, loc rppg.ROILocator, source Source, signal *rppg.RawSignal, logger *slog.Logger, onResult func(types.SampleResult)) (Stats, error) {
	defer signal.Seal()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sampler := rppg.NewSampler(loc, signal)
	var stats Stats
	frames, err := source(ctx, func(task types.FrameTask) error {
		res := types.SampleResult{Index: task.Index}
		img, decErr := imaging.Decode(bytes.NewReader(task.Data))
		video.ReleaseFrame(task.Data)

		if decErr != nil {
			logger.Debug("skipping undecodable frame", "frame", task.Index, "error", decErr)
		} else {
			added, err := sampler.Process(img)
			if err != nil {
				return err
			}
			res.OK = added
			if !added {
				logger.Debug("no usable face, skipping frame", "frame", task.Index)
			}
		}

		if res.OK {
			stats.Samples++
		} else {
			stats.Skipped++
		}
		if onResult != nil {
			onResult(res)
		}
		return nil
	})
	stats.Frames = frames
	return stats, err
}
