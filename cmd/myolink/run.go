package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/bridge"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and execute commands read from stdin",
	Long: `Connects to the hub and executes one command per stdin line until stdin
closes or Ctrl+C is pressed.

Commands:
  connect | disconnect      start or stop pumping hub events
  info                      request battery and RSSI, print connected devices
  devices                   print connected devices
  bang                      emit cached EMG, orientation, gyro and accel
  vibrate [pattern]         0|short, 1|medium, 2|long; no pattern = notify
  stream|emg|unlock <0|1>   set a policy
  device <name|auto>        select the bound device

Examples:
  # Interactive session
  myolink run --config myolink.yaml

  # Emit cached samples at 50 Hz
  myolink run --bang-rate 20ms

  # Scripted session
  printf 'device Left\ninfo\n' | myolink run`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runBangRate  time.Duration
	runNoConnect bool
)

func init() {
	runCmd.Flags().DurationVar(&runBangRate, "bang-rate", 0, "Emit cached samples periodically (0 = only on bang)")
	runCmd.Flags().BoolVar(&runNoConnect, "no-connect", false, "Do not connect before reading commands")
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runBangRate < 0 {
		return fmt.Errorf("--bang-rate must not be negative")
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	g, ctx, stop := withSignals(cmd.Context())
	defer stop()

	s, err := newSession(cmd, nil, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if !runNoConnect {
		if err := s.bridge.Connect(ctx); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go readLines(ctx, cmd.InOrStdin(), lines)

	g.Go(func() error {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					s.logger.Debug("Input closed")
					return nil
				}
				err := s.bridge.ExecContext(ctx, line)
				var cmdErr *bridge.CommandError
				if err != nil && !errors.As(err, &cmdErr) {
					return err
				}
			}
		}
	})

	if runBangRate > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(runBangRate)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.bridge.EmitOnDemand()
				}
			}
		})
	}

	return g.Wait()
}

// readLines forwards input lines until EOF or ctx is done, then closes lines.
// A blocked read of r cannot be interrupted, so it may outlive the command.
func readLines(ctx context.Context, r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}
