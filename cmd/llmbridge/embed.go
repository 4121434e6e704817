package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

// headLen is how many leading components embed prints.
const headLen = 8

func newEmbedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>",
		Short: "Generate one embedding and print its dimension and leading values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			vec, err := a.embedder.GenerateEmbedding(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			head := vec
			if len(head) > headLen {
				head = head[:headLen]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"provider":  a.provider.Name(),
				"model":     a.embedder.Model(),
				"dimension": len(vec),
				"head":      head,
			})
		},
	}
}
