package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/raintree-service/internal/domain"
)

func inspectCmd(rootConfig *rootCmdConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <tree>",
		Short: "Print the structure of a tree",
		Long:  `Print an indented dump of a tree together with its node count, depth and the features it reads`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := rootConfig.loadTree(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, t.String())
			fmt.Fprintf(out, "nodes: %d\n", t.Len())
			fmt.Fprintf(out, "depth: %d\n", t.MaxDepth())

			names := make([]string, 0, len(t.Features()))
			for _, f := range t.Features() {
				names = append(names, fmt.Sprintf("%s (%s)", f, domain.FeatureDisplayName(f)))
			}
			fmt.Fprintf(out, "features: %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}
