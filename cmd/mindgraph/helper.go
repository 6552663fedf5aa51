package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"mindgraph/internal/config"
	"mindgraph/internal/engine"
	"mindgraph/internal/logging"
)

var (
	engineOnce   sync.Once
	sharedEngine *engine.Engine
	engineErr    error
)

// getEngine returns a shared engine instance, lazily initialized on
// first use.
func getEngine(root string, logger *logging.Logger) (*engine.Engine, error) {
	engineOnce.Do(func() {
		cfg, err := config.Load(root)
		if err != nil {
			logger.Warn("Failed to load config, using defaults", map[string]interface{}{
				"error": err.Error(),
			})
			cfg = config.DefaultConfig()
			cfg.ProjectRoot = root
		}

		e, err := engine.Open(root, cfg, logger)
		if err != nil {
			engineErr = fmt.Errorf("failed to open engine: %w", err)
			return
		}
		sharedEngine = e
	})
	return sharedEngine, engineErr
}

// mustGetEngine returns the shared engine or exits on error.
func mustGetEngine(root string, logger *logging.Logger) *engine.Engine {
	e, err := getEngine(root, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
		os.Exit(1)
	}
	return e
}

// closeEngine flushes shared engine state at the end of a command.
func closeEngine(logger *logging.Logger) {
	if sharedEngine == nil {
		return
	}
	if err := sharedEngine.Close(); err != nil {
		logger.Warn("Failed to close engine cleanly", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// getProjectRoot resolves the project root from --root or the working
// directory.
func getProjectRoot() (string, error) {
	if rootFlag != "" {
		return rootFlag, nil
	}
	return os.Getwd()
}

// mustGetProjectRoot resolves the project root or exits.
func mustGetProjectRoot() string {
	root, err := getProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

// newContext creates a context for command execution.
func newContext() context.Context {
	return context.Background()
}

// newLogger creates a logger with the requested output format.
func newLogger(format string) *logging.Logger {
	logFormat := logging.HumanFormat
	if format == "json" {
		logFormat = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: logFormat,
		Level:  logging.InfoLevel,
	})
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
