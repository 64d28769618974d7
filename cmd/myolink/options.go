package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/myolink/bridge"
	"github.com/srg/myolink/internal/output"
	"github.com/srg/myolink/pkg/config"
)

// loadConfig reads --config and applies the flags the user set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("device") {
		cfg.Device, _ = flags.GetString("device")
	}
	if flags.Changed("stream") {
		cfg.Stream, _ = flags.GetBool("stream")
	}
	if flags.Changed("emg") {
		cfg.Emg, _ = flags.GetBool("emg")
	}
	if flags.Changed("unlock") {
		cfg.Unlock, _ = flags.GetBool("unlock")
	}
	if flags.Changed("format") {
		cfg.OutputFormat, _ = flags.GetString("format")
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval, _ = flags.GetDuration("poll-interval")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session bundles what every command needs: config, logger, output and bridge
type session struct {
	cfg    *config.Config
	logger *logrus.Logger
	writer *output.WriterSink // nil when a custom sink is used
	record *output.WriterSink // JSON copy of the output, with --record
	file   *os.File
	bridge *bridge.Bridge
}

// newSession loads the configuration and creates the bridge. With a nil sink
// the bridge writes to the command output in the configured format, and to
// the --record file as JSON lines when one is given. The
// writer outlives command cancellation so Close can flush it.
func newSession(cmd *cobra.Command, adjust func(*config.Config), sink output.Sink) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	if sink == nil {
		format, err := output.ParseFormat(cfg.OutputFormat)
		if err != nil {
			return nil, err
		}
		out := cmd.OutOrStdout()
		s.writer = output.NewWriterSink(cmd.Context(), out, &output.WriterOptions{
			Format: format,
			Color:  format == output.FormatText && output.IsTerminal(out),
			Logger: logger,
		})
		sink = s.writer

		if path, _ := cmd.Flags().GetString("record"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				_ = s.writer.Close()
				return nil, fmt.Errorf("failed to create record file: %w", err)
			}
			s.file = f
			s.record = output.NewWriterSink(cmd.Context(), f, &output.WriterOptions{
				Format: output.FormatJSON,
				Logger: logger,
			})
			sink = output.Multi{s.writer, s.record}
		}
	}

	s.bridge = bridge.New(cfg.BridgeOptions(), sink, logger)
	if err := s.bridge.Disabled(); err != nil {
		_ = s.closeOutputs()
		return nil, fmt.Errorf("%w: %w", bridge.ErrDisabled, err)
	}
	return s, nil
}

// Close tears the bridge down and flushes the output
func (s *session) Close() error {
	err := s.bridge.Close()
	if cerr := s.closeOutputs(); err == nil {
		err = cerr
	}
	if s.writer != nil {
		stats := s.writer.Stats()
		s.logger.WithFields(logrus.Fields{
			"lines":   stats.Lines,
			"dropped": stats.DroppedLines,
			"bytes":   stats.Bytes,
		}).Debug("Output closed")
	}
	return err
}

func (s *session) closeOutputs() error {
	var err error
	if s.writer != nil {
		err = s.writer.Close()
	}
	if s.record != nil {
		_ = s.record.Close()
	}
	if s.file != nil {
		if ferr := s.file.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
