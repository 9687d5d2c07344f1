package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

// dateParser resolves relative date expressions like "3 days ago" for
// --created-after. This is filter-construction
// convenience only, never a scheduler (SPEC_FULL.md §9.3).
var dateParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

func parseRelativeTime(expr string) (string, error) {
	if expr == "" {
		return "", nil
	}
	result, err := dateParser.Parse(expr, time.Now())
	if err != nil {
		return "", fmt.Errorf("parsing time expression %q: %w", expr, err)
	}
	if result == nil {
		return "", fmt.Errorf("could not resolve time expression %q", expr)
	}
	return result.Time.UTC().Format("2006-01-02T15:04:05Z"), nil
}

var searchCmd = &cobra.Command{
	Use:     "search",
	GroupID: "query",
	Short:   "Search work items by filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		role, _ := cmd.Flags().GetString("role")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		createdAfter, _ := cmd.Flags().GetString("created-after")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := map[string]any{"op": "search", "query": query, "tags": tags, "limit": limit}
		if role != "" {
			filter["role"] = role
		}
		if createdAfter != "" {
			resolved, err := parseRelativeTime(createdAfter)
			if err != nil {
				return err
			}
			filter["createdAfter"] = resolved
		}

		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, _ := json.Marshal(filter)
		return printEnvelope(srv.Dispatch(context.Background(), "query_items", payload))
	},
}

func init() {
	searchCmd.Flags().String("query", "", "substring match on title/summary")
	searchCmd.Flags().String("role", "", "filter by role")
	searchCmd.Flags().StringSlice("tags", nil, "filter by any of these tags")
	searchCmd.Flags().String("created-after", "", "relative or absolute time, e.g. \"3 days ago\"")
	searchCmd.Flags().Int("limit", 50, "max results")
	rootCmd.AddCommand(searchCmd)
}
