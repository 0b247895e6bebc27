package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/vitals/internal/face"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/spf13/cobra"
)

type batchOptions struct {
	LabelsPath string
	VideosDir  string
	OutPath    string
	NumEngines int
	Smooth     int
}

var batchOpts batchOptions

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute calculated_hr for every labelled video and write a feature CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchOpts.NumEngines < 1 {
			batchOpts.NumEngines = cfg.Engines
		}
		loc, err := newLocator()
		if err != nil {
			return err
		}
		est := newEstimator(batchOpts.Smooth)
		analyze := func(ctx context.Context, path string) (rppg.Estimate, error) {
			return analyzeVideo(ctx, path, batchOpts.NumEngines, loc, est)
		}
		return runBatch(cmd.Context(), batchOpts, analyze)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchOpts.LabelsPath, "labels", "labels.csv", "CSV with a header row and a filename column")
	batchCmd.Flags().StringVar(&batchOpts.VideosDir, "videos", "videos", "Directory holding <filename>.mp4 files")
	batchCmd.Flags().StringVar(&batchOpts.OutPath, "out", "processed_dataset.csv", "Output CSV path")
	batchCmd.Flags().IntVarP(&batchOpts.NumEngines, "engines", "e", 0, "Number of parallel sampling engines per video (default from config)")
	batchCmd.Flags().IntVar(&batchOpts.Smooth, "smooth", 3, "Moving-average width applied after filtering (0 disables)")
	rootCmd.AddCommand(batchCmd)
}

// analyzeFunc turns one video into an estimate.
type analyzeFunc func(ctx context.Context, path string) (rppg.Estimate, error)

func analyzeVideo(ctx context.Context, path string, engines int, loc *face.Locator, est *rppg.Estimator) (rppg.Estimate, error) {
	acq, err := acquire(ctx, path, engines, loc, false)
	if err != nil {
		return rppg.Estimate{}, err
	}
	if acq.Signal.Len() == 0 {
		return rppg.Estimate{}, errors.New("could not extract signal")
	}
	return est.Run(acq.Signal), nil
}

// runBatch joins labels with calculated heart rates. Videos that are missing,
// fail to decode or only yield a fallback estimate are skipped, never zero-filled.
func runBatch(ctx context.Context, opts batchOptions, analyze analyzeFunc) error {
	in, err := os.Open(opts.LabelsPath)
	if err != nil {
		return fail("Failed to open labels", err, nil)
	}
	defer in.Close()

	rows, header, err := joinLabels(ctx, in, opts.VideosDir, analyze)
	if err != nil {
		return fail("Failed to process labels", err, nil)
	}
	if len(rows) == 0 {
		return fail("No videos were processed successfully", nil, nil)
	}

	out, err := os.Create(opts.OutPath)
	if err != nil {
		return fail("Failed to create output", err, nil)
	}
	w := csv.NewWriter(out)
	_ = w.Write(header)
	_ = w.WriteAll(rows)
	if err := w.Error(); err != nil {
		out.Close()
		return fail("Failed to write output", err, nil)
	}
	if err := out.Close(); err != nil {
		return fail("Failed to write output", err, nil)
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Processed data saved to %s (%d videos)\n", opts.OutPath, len(rows))
	return nil
}

// joinLabels reads the labels CSV from r and returns the output header and
// one row per successfully estimated video.
func joinLabels(ctx context.Context, r io.Reader, videosDir string, analyze analyzeFunc) ([][]string, []string, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	col := -1
	for i, name := range header {
		if name == "filename" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, nil, errors.New(`labels have no "filename" column`)
	}

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		name := rec[col] + ".mp4"
		path := filepath.Join(videosDir, name)
		if _, err := os.Stat(path); err != nil {
			logger.Warn("video file not found, skipping", "video", name)
			continue
		}

		fmt.Fprintf(os.Stderr, "🎞️  Processing: %s...\n", name)
		est, err := analyze(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("could not extract signal, skipping", "video", name, "error", err)
			continue
		}
		if est.IsFallback() {
			logger.Warn("no usable heart rate, skipping", "video", name, "reason", est.Reason)
			continue
		}

		rows = append(rows, append(append([]string(nil), rec...), strconv.FormatFloat(est.BPM, 'f', -1, 64)))
	}
	return rows, append(append([]string(nil), header...), "calculated_hr"), nil
}
