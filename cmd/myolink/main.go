package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "myolink",
	Short: "Armband EMG/IMU streaming tool",
	Long: `Connects to an EMG/IMU armband hub and streams the bound device's data:

- Track connected armbands and bind one, automatically or by name
- Stream EMG, orientation, angular velocity and acceleration as they arrive
- Emit cached samples on demand ("bang")
- Report poses, arm sync, battery level and RSSI
- Drive everything from line commands on stdin (see the run command)

Output lines have the form "<channel> <values...>" where channel is one of
info, pose, emg, quat, gyro or accel.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("myolink %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(devicesCmd)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Shortcut for --log-level debug")
	flags.String("device", "", `Device selector: a device name or "auto"`)
	flags.Bool("stream", false, "Emit every sample as it arrives")
	flags.Bool("emg", false, "Enable raw EMG streaming on the bound device")
	flags.Bool("unlock", false, "Disable the pose locking policy")
	flags.String("format", "", "Output format: text or json")
	flags.Duration("poll-interval", 0, "Hub pump interval (default 20ms)")
	flags.String("record", "", "Also write the output to this file as JSON lines")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
