package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/vitals/internal/predict"
	"github.com/andresmejia3/vitals/internal/report"
	"github.com/andresmejia3/vitals/internal/rppg"
	"github.com/andresmejia3/vitals/internal/store"
	"github.com/spf13/cobra"
)

// Options holds the flags of the estimate command.
type Options struct {
	InputPath  string
	NumEngines int
	PlotPath   string
	ModelsDir  string
	Seed       uint64
	Smooth     int
}

var estimateOpts Options

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate heart rate from a face video",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEstimate(cmd.Context(), cmd, estimateOpts)
	},
}

func init() {
	estimateCmd.Flags().StringVarP(&estimateOpts.InputPath, "input", "i", "", "Path to video")
	estimateCmd.Flags().IntVarP(&estimateOpts.NumEngines, "engines", "e", 0, "Number of parallel sampling engines (default from config)")
	estimateCmd.Flags().StringVar(&estimateOpts.PlotPath, "plot", "", "Write a PNG of the filtered signal and beats to this path")
	estimateCmd.Flags().StringVar(&estimateOpts.ModelsDir, "models", "", "Directory with bp/hr/stress model files; enables vitals prediction")
	estimateCmd.Flags().Uint64Var(&estimateOpts.Seed, "seed", 0, "Seed for the fallback rate (reproducible runs)")
	estimateCmd.Flags().IntVar(&estimateOpts.Smooth, "smooth", -1, "Moving-average width applied after filtering (default from config, 0 disables)")

	estimateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(estimateCmd)
}

// runEstimate orchestrates one video: decode, sample, estimate, predict, persist.
func runEstimate(ctx context.Context, cmd *cobra.Command, opts Options) error {
	if opts.NumEngines < 1 {
		opts.NumEngines = cfg.Engines
	}
	if opts.Smooth < 0 {
		opts.Smooth = cfg.SmoothWindow
	}
	if cmd.Flags().Changed("seed") {
		cfg.FallbackSeed = &opts.Seed
	}

	// Models load up front so a bad directory fails before decoding.
	var registry *predict.Registry
	if opts.ModelsDir != "" {
		var err error
		registry, err = predict.Load(opts.ModelsDir)
		if err != nil {
			return fail("Failed to load models", err, nil)
		}
	}

	loc, err := newLocator()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Sampling Engine(s)...\n", opts.NumEngines)
	acq, err := acquire(ctx, opts.InputPath, opts.NumEngines, loc, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "📼 Video %s: %d samples from %d frames at %.2f fps\n",
		acq.VideoID[:12], acq.Stats.Samples, acq.Stats.Frames, acq.FPS)

	est := newEstimator(opts.Smooth).Run(acq.Signal)
	printEstimate(est)

	var vitals *predict.Vitals
	if registry != nil {
		v, err := registry.Predict(est.BPM)
		if err != nil {
			return fail("Prediction failed", err, nil)
		}
		vitals = &v
		fmt.Printf("🩸 Blood pressure: %d/%d mmHg\n", v.Systolic, v.Diastolic)
		fmt.Printf("💓 Predicted heart rate: %d BPM\n", v.HeartRate)
		fmt.Printf("🧠 Stress: %s\n", v.Stress)
	}

	if opts.PlotPath != "" {
		if err := report.WritePlot(opts.PlotPath, est); err != nil {
			logger.Warn("plot not written", "path", opts.PlotPath, "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "📈 Plot written to %s\n", opts.PlotPath)
		}
	}

	if DB != nil {
		if err := DB.EnsureVideoMetadata(ctx, acq.VideoID, acq.Path, acq.FPS); err != nil {
			return fail("Failed to register video metadata", err, nil)
		}
		if err := DB.InsertReading(ctx, newReading(est, acq.VideoID, vitals)); err != nil {
			return fail("Failed to persist reading", err, nil)
		}
		logger.Debug("reading persisted", "run", est.RunID)
	}
	return nil
}

func printEstimate(est rppg.Estimate) {
	if est.IsFallback() {
		fmt.Printf("❤️  Heart rate: %.1f BPM (fallback: %s)\n", est.BPM, est.Reason)
		return
	}
	fmt.Printf("❤️  Heart rate: %.1f BPM (%d beats)\n", est.BPM, len(est.Peaks))
}

func newReading(est rppg.Estimate, videoID string, vitals *predict.Vitals) store.Reading {
	return store.Reading{
		RunID:          est.RunID,
		VideoID:        videoID,
		BPM:            est.BPM,
		Source:         string(est.Source),
		FallbackReason: string(est.Reason),
		SampleCount:    est.Samples,
		SampleRate:     est.SampleRate,
		PeakCount:      len(est.Peaks),
		Vitals:         vitals,
	}
}
