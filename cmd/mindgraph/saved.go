package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mindgraph/internal/engine"
)

var (
	savedParams []string
	savedLimit  int
)

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage and run saved queries",
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved query names",
	Run:   runSavedList,
}

var savedSetCmd = &cobra.Command{
	Use:   "set <name> <query>",
	Short: "Save a query under a name",
	Long: `Save a query under a name. $param placeholders are filled from
--param defaults at save time and may be overridden at run time:

  mindgraph saved set classes-in 'MATCH (f:file)-[:contains]->(c:class) WHERE f.path = $path RETURN c.name' --param path=src/main.go`,
	Args: cobra.ExactArgs(2),
	Run:  runSavedSet,
}

var savedRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a saved query",
	Args:  cobra.ExactArgs(1),
	Run:   runSavedRun,
}

var savedDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved query",
	Args:  cobra.ExactArgs(1),
	Run:   runSavedDelete,
}

func init() {
	savedSetCmd.Flags().StringArrayVar(&savedParams, "param", nil, "Default parameter key=value (repeatable)")
	savedRunCmd.Flags().StringArrayVar(&savedParams, "param", nil, "Parameter override key=value (repeatable)")
	savedRunCmd.Flags().IntVar(&savedLimit, "limit", 0, "Maximum number of results")
	savedCmd.AddCommand(savedListCmd, savedSetCmd, savedRunCmd, savedDeleteCmd)
	rootCmd.AddCommand(savedCmd)
}

func runSavedList(cmd *cobra.Command, args []string) {
	logger := newLogger("json")
	e := mustGetEngine(mustGetProjectRoot(), logger)
	defer closeEngine(logger)

	names, err := e.SavedQueries().List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list saved queries: %v\n", err)
		os.Exit(1)
	}
	printJSON(names)
}

func runSavedSet(cmd *cobra.Command, args []string) {
	logger := newLogger("json")
	e := mustGetEngine(mustGetProjectRoot(), logger)
	defer closeEngine(logger)

	if err := e.SavedQueries().Save(args[0], args[1], parseContext(savedParams)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save query: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved query %q\n", args[0])
}

func runSavedRun(cmd *cobra.Command, args []string) {
	logger := newLogger("json")
	e := mustGetEngine(mustGetProjectRoot(), logger)
	defer closeEngine(logger)

	resp, err := e.ExecuteSaved(newContext(), args[0], parseContext(savedParams), engine.QueryOptions{Limit: savedLimit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Saved query failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func runSavedDelete(cmd *cobra.Command, args []string) {
	logger := newLogger("json")
	e := mustGetEngine(mustGetProjectRoot(), logger)
	defer closeEngine(logger)

	if err := e.SavedQueries().Delete(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete saved query: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted saved query %q\n", args[0])
}
