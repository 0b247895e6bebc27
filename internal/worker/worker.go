package worker

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/andresmejia3/vitals/internal/video"
	"github.com/disintegration/imaging"
)

// Engine turns JPEG frames into forehead samples. Each engine owns its
// locator so detectors never have to be shared between goroutines.
type Engine struct {
	ID      int
	locator rppg.ROILocator
	logger  *slog.Logger
}

// NewEngine binds a locator to an engine. A nil logger discards diagnostics.
func NewEngine(id int, loc rppg.ROILocator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{ID: id, locator: loc, logger: logger.With("engine", id)}
}

// ProcessFrame decodes one frame and samples it. Frames that cannot be decoded
// or have no usable face come back with OK=false.
func (e *Engine) ProcessFrame(task types.FrameTask) (types.SampleResult, error) {
	res := types.SampleResult{Index: task.Index}

	img, err := imaging.Decode(bytes.NewReader(task.Data))
	if err != nil {
		return res, fmt.Errorf("decode frame %d: %w", task.Index, err)
	}

	v, ok := rppg.SampleFrame(e.locator, img)
	if !ok {
		e.logger.Debug("no usable face, skipping frame", "frame", task.Index)
		return res, nil
	}
	res.Value = v
	res.OK = true
	return res, nil
}

// Run processes tasks until the channel is closed. Every task produces exactly
// one result so the collector never waits on a missing index.
func (e *Engine) Run(tasks <-chan types.FrameTask, results chan<- types.SampleResult) {
	for task := range tasks {
		res, err := e.ProcessFrame(task)

		// Return buffer to pool immediately after decoding
		video.ReleaseFrame(task.Data)

		if err != nil {
			e.logger.Debug("skipping undecodable frame", "frame", task.Index, "error", err)
		}
		results <- res
	}
}
