// Command treectl inspects, evaluates, lays out and renders rain decision
// trees without running the service.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

type rootCmdConfig struct {
	maxDepth int
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "treectl",
		Short:        "treectl works with rain prediction decision trees",
		Long:         `A tool to inspect decision tree documents, classify feature vectors against them, and lay them out or render them as SVG`,
		SilenceUsage: true,
	}
	config := &rootCmdConfig{}
	rootCmd.PersistentFlags().IntVar(&config.maxDepth, "max-depth", tree.DefaultMaxDepth, "deepest node accepted when parsing")
	rootCmd.AddCommand(inspectCmd(config), predictCmd(config), layoutCmd(config), renderCmd(config))
	return rootCmd
}

// loadTree reads a JSON or YAML tree document, picking the format from the
// file extension.
func (c *rootCmdConfig) loadTree(path string) (*tree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tree from %s: %w", path, err)
	}
	root, err := tree.Parser{MaxDepth: c.maxDepth}.Parse(tree.FormatFromPath(path), data)
	if err != nil {
		return nil, fmt.Errorf("parsing tree from %s: %w", path, err)
	}
	return tree.Build(root)
}

// parseFeatures turns repeated name=value flags into a feature vector.
func parseFeatures(pairs []string) (tree.FeatureVector, error) {
	fv := make(tree.FeatureVector, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("feature %q must look like name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		fv[name] = v
	}
	return fv, nil
}

func layoutParams(vertical bool) layout.Params {
	p := layout.DefaultParams()
	if vertical {
		p.Orientation = layout.Vertical
	}
	return p
}
