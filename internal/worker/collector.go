package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/types"
	"github.com/andresmejia3/vitals/internal/video"
)

// Stats summarises one acquisition run.
type Stats struct {
	Frames  int // frames read from the source
	Samples int // samples appended to the signal
	Skipped int // frames without a usable face
}

// Collector re-orders engine results by frame index and appends the usable
// ones to a RawSignal. Engine 2 may finish before engine 1; samples still land
// in frame order.
type Collector struct {
	signal *rppg.RawSignal
	buffer map[int]types.SampleResult
	next   int
	stats  Stats
}

// NewCollector starts collecting at frame 0.
func NewCollector(signal *rppg.RawSignal) *Collector {
	return &Collector{signal: signal, buffer: make(map[int]types.SampleResult)}
}

// Add buffers res and flushes every result that is now in sequence.
func (c *Collector) Add(res types.SampleResult) error {
	if res.Index < c.next {
		return fmt.Errorf("duplicate result for frame %d", res.Index)
	}
	if _, dup := c.buffer[res.Index]; dup {
		return fmt.Errorf("duplicate result for frame %d", res.Index)
	}
	c.buffer[res.Index] = res

	// Process frames in strict order
	for {
		frame, ok := c.buffer[c.next]
		if !ok {
			return nil
		}
		delete(c.buffer, c.next)
		c.next++

		if !frame.OK {
			c.stats.Skipped++
			continue
		}
		if _, err := c.signal.Append(frame.Value); err != nil {
			return err
		}
		c.stats.Samples++
	}
}

// Pending returns the number of results waiting for an earlier frame.
func (c *Collector) Pending() int { return len(c.buffer) }

// Stats returns the counts so far. Frames is filled in by Acquire.
func (c *Collector) Stats() Stats { return c.stats }

// Source feeds frames to emit in stream order and returns how many it read.
// (*video.Decoder).Run satisfies it.
type Source func(ctx context.Context, emit func(types.FrameTask) error) (int, error)

// Acquire fans frames from source out to the engines and collects their
// samples, in frame order, into signal. The signal is sealed on return, also
// on error, so it can still be estimated.
func Acquire(ctx context.Context, engines []*Engine, source Source, signal *rppg.RawSignal, onResult func(types.SampleResult)) (Stats, error) {
	defer signal.Seal()
	if len(engines) == 0 {
		return Stats{}, fmt.Errorf("no engines")
	}

	tasks := make(chan types.FrameTask, len(engines))
	results := make(chan types.SampleResult, len(engines)*2)
	col := NewCollector(signal)

	// The aggregator must run concurrently to prevent deadlock on results.
	// It keeps draining after a failure so engines never block.
	aggErr := make(chan error, 1)
	go func() {
		var first error
		for res := range results {
			if onResult != nil {
				onResult(res)
			}
			if first != nil {
				continue
			}
			first = col.Add(res)
		}
		aggErr <- first
	}()

	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			e.Run(tasks, results)
		}(e)
	}

	frames, srcErr := source(ctx, func(task types.FrameTask) error {
		select {
		case tasks <- task:
			return nil
		case <-ctx.Done():
			video.ReleaseFrame(task.Data)
			return ctx.Err()
		}
	})

	close(tasks)
	wg.Wait()
	close(results)
	colErr := <-aggErr

	stats := col.Stats()
	stats.Frames = frames
	if srcErr != nil {
		return stats, srcErr
	}
	if colErr != nil {
		return stats, colErr
	}
	if n := col.Pending(); n > 0 {
		return stats, fmt.Errorf("%d results never reached frame %d", n, col.next)
	}
	return stats, nil
}

