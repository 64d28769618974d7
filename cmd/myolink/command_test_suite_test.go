package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs myolink commands in-process against the simulated hub.
// All cmd/myolink test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
}

func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd)
}

// WriteConfig writes a YAML configuration file and returns its path
func (s *CommandTestSuite) WriteConfig(content string) string {
	path := filepath.Join(s.T().TempDir(), "myolink.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600))
	return path
}

// ExecuteCommand runs the root command with args and stdin, returns stdout,
// stderr and the command error.
func (s *CommandTestSuite) ExecuteCommand(stdin io.Reader, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default,
// since cobra keeps parsed values across Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
