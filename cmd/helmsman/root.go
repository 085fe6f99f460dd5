package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seaborne/helmsman/config"
)

var configPath string

// newRootCmd creates the top-level helmsman CLI command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "helmsman",
		Short: "Tool-using LLM agent shell",
		Long: `Helmsman runs a conversational agent against an OpenAI-compatible
completion endpoint. The agent can call local tools (files, search,
calculator, persistent memory); side-effecting tools require operator
approval before they run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "helmsman.yaml", "Path to the config file")

	cmd.AddCommand(
		newChatCmd(),
		newProfilesCmd(),
	)

	return cmd
}

// buildLogger constructs the process logger from the log config.
func buildLogger(lc config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = lc.Format
	if lc.Format == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zc.OutputPaths = []string{"stderr"}
	}
	return zc.Build()
}
