package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statsWindow time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph, cache, and query statistics",
	Run:   runStats,
}

func init() {
	statsCmd.Flags().DurationVar(&statsWindow, "window", 24*time.Hour, "Telemetry aggregation window")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	logger := newLogger("json")
	root := mustGetProjectRoot()
	e := mustGetEngine(root, logger)
	defer closeEngine(logger)

	stats := e.Stats()
	metrics, err := e.QueryMetrics(time.Now().Add(-statsWindow))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read query metrics: %v\n", err)
		os.Exit(1)
	}

	printJSON(map[string]interface{}{
		"graph":        stats,
		"queryMetrics": metrics,
	})
}
