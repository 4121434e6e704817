package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/llmbridge/internal/window"
)

func newWindowCmd(flags *rootFlags) *cobra.Command {
	var (
		size       int
		withTokens bool
	)
	cmd := &cobra.Command{
		Use:   "window <file>",
		Short: "Split a file into overlapping windows and print them as JSON",
		Long:  "Split a file into overlapping windows and print them as JSON. Use - to read stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			w, err := window.New(cfg.WindowConfig(), window.WithLogger(logger))
			if err != nil {
				return err
			}
			windows := w.ProcessContext(text, window.ProcessOptions{WindowSize: size, IncludeTokenCounts: withTokens})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(windows)
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "window size in bytes (default: computed from the text)")
	cmd.Flags().BoolVar(&withTokens, "tokens", false, "include estimated token counts")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return string(data), nil
}
