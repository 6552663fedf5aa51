package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mindgraph/internal/engine"
)

var (
	queryLimit   int
	queryType    string
	queryContext []string
	querySkip    []string
	queryFormat  string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Query the knowledge graph",
	Long: `Query the knowledge graph. The text is classified automatically:

  - MATCH queries run through the structured engine:
      mindgraph query 'MATCH (f:file)-[:contains]->(c:class) WHERE c.name CONTAINS "Controller" RETURN f.path, c.name'
  - A path-shaped literal looks the node up by path:
      mindgraph query src/auth/login.ts
  - Everything else is ranked free text:
      mindgraph query "login controller" --context language=typescript`,
	Args: cobra.ExactArgs(1),
	Run:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum number of results (default: configured)")
	queryCmd.Flags().StringVar(&queryType, "type", "", "Restrict free-text results to one node type")
	queryCmd.Flags().StringArrayVar(&queryContext, "context", nil, "Context attribute key=value (repeatable)")
	queryCmd.Flags().StringSliceVar(&querySkip, "skip", nil, "Pipeline stages to skip (cache, activation, telemetry)")
	queryCmd.Flags().StringVar(&queryFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	logger := newLogger(queryFormat)
	root := mustGetProjectRoot()
	e := mustGetEngine(root, logger)
	defer closeEngine(logger)

	opts := engine.QueryOptions{
		Limit:   queryLimit,
		Type:    queryType,
		Context: parseContext(queryContext),
	}
	for _, s := range querySkip {
		opts.Skip = append(opts.Skip, engine.Stage(s))
	}

	resp, err := e.Query(newContext(), args[0], opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	if queryFormat == "human" {
		printHumanResponse(resp)
		return
	}
	printJSON(resp)
}

func parseContext(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	ctx := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			fmt.Fprintf(os.Stderr, "Invalid context attribute %q (want key=value)\n", pair)
			os.Exit(1)
		}
		ctx[key] = value
	}
	return ctx
}

func printHumanResponse(resp *engine.Response) {
	fmt.Printf("kind: %s  cached: %v  took: %dms\n", resp.Kind, resp.Cached, resp.TookMs)
	if len(resp.Columns) > 0 {
		fmt.Println(strings.Join(resp.Columns, "\t"))
		for _, row := range resp.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprint(v)
			}
			fmt.Println(strings.Join(cells, "\t"))
		}
		return
	}
	for _, m := range resp.Matches {
		fmt.Printf("%-8.3f %-12s %s  %s\n", m.Score, m.Node.Type, m.Node.Name, m.Node.Path)
	}
	for _, r := range resp.Related {
		fmt.Printf("  related %-8.3f %-12s %s\n", r.Activation, r.Node.Type, r.Node.Name)
	}
}
