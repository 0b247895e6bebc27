package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/vitals/internal/live"
	"github.com/andresmejia3/vitals/internal/stream"
	"github.com/spf13/cobra"
)

var (
	relayURL  string
	relayIn   string
	relayOut  string
	relayRate float64
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Estimate heart rate from sample batches published on NATS",
	Long: "Subscribes to little-endian float32 sample batches, keeps a rolling window " +
		"and publishes a JSON estimate after every batch once the window is long enough.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd.Context())
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayURL, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	relayCmd.Flags().StringVar(&relayIn, "in", stream.SamplesSubject, "Subject carrying sample batches")
	relayCmd.Flags().StringVar(&relayOut, "out", stream.EstimatesSubject, "Subject receiving estimates")
	relayCmd.Flags().Float64Var(&relayRate, "rate", 0, "Sample rate of the incoming batches (default from config)")
	rootCmd.AddCommand(relayCmd)
}

func runRelay(ctx context.Context) error {
	if relayRate <= 0 {
		relayRate = cfg.DefaultSampleRate
	}

	nc, err := stream.Connect(relayURL)
	if err != nil {
		return fail("Failed to connect to NATS", err, nil)
	}
	defer nc.Drain()

	relay := &stream.Relay{
		Window:    live.NewWindow(cfg.LiveWindowSeconds, relayRate, logger),
		Estimator: newEstimator(cfg.SmoothWindow),
		Out:       relayOut,
		Logger:    logger,
	}

	fmt.Fprintf(os.Stderr, "📡 Relaying %s -> %s on %s\n", relayIn, relayOut, nc.ConnectedUrl())
	if err := relay.Run(ctx, nc, relayIn); err != nil {
		return fail("Relay failed", err, nil)
	}
	fmt.Fprintln(os.Stderr, "🛑 Relay stopped")
	return nil
}
