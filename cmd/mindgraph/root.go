package main

import (
	"mindgraph/internal/version"

	"github.com/spf13/cobra"
)

var rootFlag string

var rootCmd = &cobra.Command{
	Use:   "mindgraph",
	Short: "mindgraph - embedded code knowledge graph",
	Long: `mindgraph maintains a per-project knowledge graph of code facts
(files, classes, functions, errors, patterns) and answers free-text,
path, and structured MATCH queries over it. State lives under the
project's .mindgraph directory.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("mindgraph version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"Project root (default: current directory)")
}
