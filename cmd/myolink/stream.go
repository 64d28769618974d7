package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/pkg/config"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream the bound device's samples",
	Long: `Connects with streaming enabled and prints every sample of the bound device
until Ctrl+C or --duration elapses.

Examples:
  # Stream IMU data
  myolink stream

  # Stream EMG too, for 10 seconds, as JSON lines
  myolink stream --emg --duration 10s --format json

  # Stream a specific armband
  myolink stream --device "Left Arm"`,
	Args: cobra.NoArgs,
	RunE: runStream,
}

var streamDuration time.Duration

func init() {
	streamCmd.Flags().DurationVar(&streamDuration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")
}

func runStream(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	g, ctx, stop := withSignals(cmd.Context())
	defer stop()

	s, err := newSession(cmd, func(cfg *config.Config) { cfg.Stream = true }, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.bridge.Connect(ctx); err != nil {
		return err
	}
	s.logger.WithField("device", s.cfg.Device).Info("Streaming, press Ctrl+C to stop")

	if streamDuration > 0 {
		g.Go(func() error {
			timer := time.NewTimer(streamDuration)
			defer timer.Stop()
			select {
			case <-timer.C:
				stop()
			case <-ctx.Done():
			}
			return nil
		})
	}

	return g.Wait()
}
