package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var advanceCmd = &cobra.Command{
	Use:     "advance <item-id> <trigger>",
	GroupID: "workflow",
	Short:   "Advance an item's role via a trigger (start|complete|block|hold|resume|cancel)",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetString("summary")
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, _ := json.Marshal(map[string]any{
			"itemId":  args[0],
			"trigger": args[1],
			"summary": summary,
		})
		return printEnvelope(srv.Dispatch(context.Background(), "advance_item", payload))
	},
}

var nextStatusCmd = &cobra.Command{
	Use:     "next-status <item-id>",
	GroupID: "workflow",
	Short:   "Show the legal next transitions for an item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"itemId": args[0]})
		return printEnvelope(srv.Dispatch(context.Background(), "get_next_status", payload))
	},
}

func init() {
	advanceCmd.Flags().String("summary", "", "optional audit summary for this transition")
	rootCmd.AddCommand(advanceCmd, nextStatusCmd)
}
