package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/vitals/internal/store"
	"github.com/spf13/cobra"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored heart rate readings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if DB == nil {
			return errNoDatabase
		}
		readings, err := DB.ListReadings(cmd.Context(), listLimit)
		if err != nil {
			return fail("Failed to list readings", err, nil)
		}
		printReadings(os.Stdout, readings)
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of readings (0 for all)")
	rootCmd.AddCommand(listCmd)
}

func printReadings(out io.Writer, readings []store.Reading) {
	if len(readings) == 0 {
		fmt.Fprintln(out, "No readings found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tBPM\tSOURCE\tBP\tSTRESS\tVIDEO\tCREATED")
	fmt.Fprintln(w, "---\t---\t------\t--\t------\t-----\t-------")

	for _, r := range readings {
		source := r.Source
		if r.FallbackReason != "" {
			source += " (" + r.FallbackReason + ")"
		}
		bp, stress := "-", "-"
		if r.Vitals != nil {
			bp = fmt.Sprintf("%d/%d", r.Vitals.Systolic, r.Vitals.Diastolic)
			stress = r.Vitals.Stress
		}
		video := r.VideoPath
		if video == "" {
			video = "-"
		}
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID.String()[:8], r.BPM, source, bp, stress, video, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
