package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mindgraph/internal/export"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <output-file>",
	Short: "Export the graph document to JSON or YAML",
	Long: `Export the graph document to a file inside the project root.
The format is taken from --format, or inferred from the file extension.`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Output format (json, yaml; default: by extension)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	logger := newLogger("human")
	root := mustGetProjectRoot()
	e := mustGetEngine(root, logger)
	defer closeEngine(logger)

	outPath := args[0]
	name := exportFormat
	if name == "" {
		name = filepath.Ext(outPath)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := e.Export(outPath, format); err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported graph to %s\n", outPath)
}
