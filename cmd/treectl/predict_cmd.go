package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

type predictCmdConfig struct {
	features []string
}

func predictCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &predictCmdConfig{}
	cmd := &cobra.Command{
		Use:   "predict <tree>",
		Short: "Classify a feature vector",
		Long:  `Walk a tree with the given feature values and print the predicted label and the path taken`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := rootConfig.loadTree(args[0])
			if err != nil {
				return err
			}
			fv, err := parseFeatures(config.features)
			if err != nil {
				return err
			}
			res, err := tree.Classify(t, fv)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "label: %d (%s)\n", res.Label, domain.ClassName(res.Label))
			fmt.Fprintf(out, "path: %v\n", res.Path.IDs)
			for _, id := range res.Path.IDs {
				n, _ := t.Node(id)
				if summary := domain.FeatureSummary(n); summary != "" {
					fmt.Fprintf(out, "  [%d] %s\n", id, summary)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&config.features, "feature", "f", nil, "feature value as name=value, repeatable")
	return cmd
}
