package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/llmbridge/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "llmbridge",
		Short:         "Resilient LLM invocation, embeddings and text windowing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: ./llmbridge.yaml if present)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newServeCmd(flags),
		newWindowCmd(flags),
		newEmbedCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads configuration and builds the stderr logger; stdout is reserved
// for the MCP protocol and command output.
func (f *rootFlags) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.Log.Level
	if f.logLevel != "" {
		level = f.logLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, zerolog.Nop(), errors.Wrapf(err, "invalid log level %q", level)
	}
	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "llmbridge").Logger()
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "llmbridge\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
		},
	}
}
