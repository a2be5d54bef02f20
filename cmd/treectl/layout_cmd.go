package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/raintree-service/internal/layout"
)

func layoutCmd(rootConfig *rootCmdConfig) *cobra.Command {
	var vertical bool
	cmd := &cobra.Command{
		Use:   "layout <tree>",
		Short: "Print node positions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := rootConfig.loadTree(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(layout.Compute(t, layoutParams(vertical)))
		},
	}
	cmd.Flags().BoolVar(&vertical, "vertical", false, "grow the tree downwards instead of rightwards")
	return cmd
}
