package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pruneAsync bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove the weakest edges when the graph exceeds its budget",
	Run:   runPrune,
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneAsync, "async", false, "Run on the background task runner and wait")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	logger := newLogger("human")
	root := mustGetProjectRoot()
	e := mustGetEngine(root, logger)
	defer closeEngine(logger)

	ctx := newContext()
	if pruneAsync {
		handle, err := e.PruneAsync()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to schedule prune: %v\n", err)
			os.Exit(1)
		}
		if err := handle.Wait(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Prune task failed: %v\n", err)
			os.Exit(1)
		}
		printJSON(handle.Snapshot())
		return
	}

	printJSON(e.Prune(ctx))
}
