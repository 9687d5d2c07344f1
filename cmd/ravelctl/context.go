package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:     "context <item-id>",
	GroupID: "query",
	Short:   "Show the session-resume bundle for one item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"itemId": args[0]})
		return printEnvelope(srv.Dispatch(context.Background(), "get_context", payload))
	},
}

var nextItemCmd = &cobra.Command{
	Use:     "next",
	GroupID: "query",
	Short:   "Show the single most actionable item",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return printEnvelope(srv.Dispatch(context.Background(), "get_next_item", nil))
	},
}

var blockedCmd = &cobra.Command{
	Use:     "blocked",
	GroupID: "query",
	Short:   "List items currently blocked by a dependency",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return printEnvelope(srv.Dispatch(context.Background(), "get_blocked_items", nil))
	},
}

var overviewCmd = &cobra.Command{
	Use:     "overview [item-id]",
	GroupID: "query",
	Short:   "Show root items (or one item) with per-role child counts",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		includeChildren, _ := cmd.Flags().GetBool("children")

		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"op": "overview", "id": id, "includeChildren": includeChildren})
		return printEnvelope(srv.Dispatch(context.Background(), "query_items", payload))
	},
}

func init() {
	overviewCmd.Flags().Bool("children", false, "include each root's direct children")
	rootCmd.AddCommand(contextCmd, nextItemCmd, blockedCmd, overviewCmd)
}
