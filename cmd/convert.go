package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kmcsim/kmcsim/sim/trajectory"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert kmcsim output files",
	Long:  "Convert kmcsim output files to plain formats. Output is written to stdout for piping.",
}

// --- kmcsim convert trajectory ---

var trajectoryInPath string

var convertTrajectoryCmd = &cobra.Command{
	Use:   "trajectory",
	Short: "Decompress a trajectory to plain JSON lines",
	Run: func(cmd *cobra.Command, args []string) {
		if trajectoryInPath == "" {
			logrus.Fatalf("--in is required")
		}
		if err := convertTrajectory(os.Stdout, trajectoryInPath); err != nil {
			logrus.Fatalf("Trajectory conversion failed: %v", err)
		}
	},
}

// convertTrajectory writes the header and frames of a zstd trajectory as
// uncompressed JSON lines.
func convertTrajectory(w io.Writer, path string) error {
	header, frames, err := trajectory.ReadFile(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	for i := range frames {
		if err := enc.Encode(frames[i]); err != nil {
			return fmt.Errorf("encoding frame %d: %w", i, err)
		}
	}
	return bw.Flush()
}

func init() {
	convertTrajectoryCmd.Flags().StringVar(&trajectoryInPath, "in", "", "Trajectory file written by kmcsim run --trajectory")

	convertCmd.AddCommand(convertTrajectoryCmd)
	rootCmd.AddCommand(convertCmd)
}
