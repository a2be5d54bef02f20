package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/raintree-service/internal/adapter/svg"
	"github.com/couchcryptid/raintree-service/internal/highlight"
	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/tree"
	"github.com/couchcryptid/raintree-service/internal/viewer"
)

type renderCmdConfig struct {
	features []string
	output   string
	vertical bool
	width    int
	height   int
}

func renderCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &renderCmdConfig{}
	cmd := &cobra.Command{
		Use:   "render <tree>",
		Short: "Render a tree as SVG",
		Long:  `Render a tree as an SVG diagram, highlighting the decision path when feature values are given`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := rootConfig.loadTree(args[0])
			if err != nil {
				return err
			}

			hl := highlight.NewController(t)
			if len(config.features) > 0 {
				fv, err := parseFeatures(config.features)
				if err != nil {
					return err
				}
				res, err := tree.Classify(t, fv)
				if err != nil {
					return err
				}
				if _, err := hl.ApplyPath(res.Path); err != nil {
					return err
				}
			}
			snap := viewer.BuildSnapshot(t, layout.Compute(t, layoutParams(config.vertical)), hl.Active())

			var w io.Writer = cmd.OutOrStdout()
			if config.output != "" && config.output != "-" {
				f, err := os.Create(config.output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", config.output, err)
				}
				defer f.Close()
				w = f
			}
			if err := svg.Render(w, snap, svg.Options{Width: config.width, Height: config.height}); err != nil {
				return fmt.Errorf("rendering svg: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&config.features, "feature", "f", nil, "feature value as name=value, repeatable")
	cmd.Flags().StringVarP(&config.output, "output", "o", "", "file to write the SVG to (defaults to STDOUT)")
	cmd.Flags().BoolVar(&config.vertical, "vertical", false, "grow the tree downwards instead of rightwards")
	cmd.Flags().IntVar(&config.width, "width", 0, "viewport width in pixels (defaults to the diagram size)")
	cmd.Flags().IntVar(&config.height, "height", 0, "viewport height in pixels (defaults to the diagram size)")
	return cmd
}
