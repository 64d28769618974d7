package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/myolink/internal/output"
	"github.com/srg/myolink/pkg/config"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected armbands",
	Long: `Connects to the hub, waits for connection events, then lists the connected
armbands in connection order. The bound device is marked with '*'.

Examples:
  myolink devices
  myolink devices --wait 2s --format json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var devicesWait time.Duration

func init() {
	devicesCmd.Flags().DurationVar(&devicesWait, "wait", 500*time.Millisecond, "Time to collect connection events")
}

type deviceEntry struct {
	Name  string `json:"name"`
	Bound bool   `json:"bound"`
}

func runDevices(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	g, ctx, stop := withSignals(cmd.Context())
	defer stop()

	// Notifications are collected instead of printed
	recorder := output.NewRecorder(256)
	s, err := newSession(cmd, func(cfg *config.Config) { cfg.Stream = false }, recorder)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.bridge.Connect(ctx); err != nil {
		return err
	}

	g.Go(func() error {
		timer := time.NewTimer(devicesWait)
		defer timer.Stop()
		select {
		case <-timer.C:
			stop()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}
	s.bridge.Disconnect()

	for _, msg := range output.WithTag(output.OnChannel(recorder.Drain(), output.Info), output.TagError) {
		fmt.Fprintln(cmd.ErrOrStderr(), msg.String())
	}

	status := s.bridge.Status()
	entries := make([]deviceEntry, 0, len(status.Devices))
	for _, name := range status.Devices {
		entries = append(entries, deviceEntry{Name: name, Bound: name == status.Bound})
	}

	out := cmd.OutOrStdout()
	if s.cfg.OutputFormat == "json" {
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(entries) == 0 {
		return ErrNoDevices
	}
	for _, e := range entries {
		marker := " "
		if e.Bound {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, e.Name)
	}
	return nil
}
