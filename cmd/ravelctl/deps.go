package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:     "deps",
	GroupID: "items",
	Short:   "Create and inspect typed dependencies between items",
}

var depsAddCmd = &cobra.Command{
	Use:   "add <from-id> <to-id> <type>",
	Short: "Create a dependency edge (BLOCKS|IS_BLOCKED_BY|RELATES_TO)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		unblockAt, _ := cmd.Flags().GetString("unblock-at")
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, _ := json.Marshal(map[string]any{
			"create": []map[string]any{{"fromId": args[0], "toId": args[1], "type": args[2], "unblockAt": unblockAt}},
		})
		return printEnvelope(srv.Dispatch(context.Background(), "manage_dependencies", payload))
	},
}

var depsListCmd = &cobra.Command{
	Use:   "list <item-id>",
	Short: "List dependency edges touching an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"itemId": args[0], "direction": direction})
		return printEnvelope(srv.Dispatch(context.Background(), "query_dependencies", payload))
	},
}

func init() {
	depsAddCmd.Flags().String("unblock-at", "", "role at which the blocker is considered satisfied (default terminal)")
	depsListCmd.Flags().String("direction", "from", "from|to|all")
	depsCmd.AddCommand(depsAddCmd, depsListCmd)
	rootCmd.AddCommand(depsCmd)
}
