package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mindgraph/internal/config"
	"mindgraph/internal/paths"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .mindgraph directory with default configuration",
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()

	dir, err := paths.EnsureStoreDir(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create store directory: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.ProjectRoot = root
	if err := cfg.Save(root); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Initialized %s\n", dir)
}
