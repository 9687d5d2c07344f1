package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var notesCmd = &cobra.Command{
	Use:     "notes",
	GroupID: "items",
	Short:   "Upsert, delete, and list notes on a work item",
}

var notesUpsertCmd = &cobra.Command{
	Use:   "upsert <item-id> <key> <body>",
	Short: "Create or overwrite a note by (itemId, key)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, _ := json.Marshal(map[string]any{
			"upsert": []map[string]any{{"itemId": args[0], "key": args[1], "body": args[2], "role": role}},
		})
		return printEnvelope(srv.Dispatch(context.Background(), "manage_notes", payload))
	},
}

var notesListCmd = &cobra.Command{
	Use:   "list <item-id>",
	Short: "List every note on an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"itemId": args[0]})
		return printEnvelope(srv.Dispatch(context.Background(), "query_notes", payload))
	},
}

func init() {
	notesUpsertCmd.Flags().String("role", "", "role the note is expected at (optional)")
	notesCmd.AddCommand(notesUpsertCmd, notesListCmd)
	rootCmd.AddCommand(notesCmd)
}
