package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var itemCmd = &cobra.Command{
	Use:     "item",
	GroupID: "items",
	Short:   "Create, inspect, and edit work items",
}

var itemCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a single work item",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		parentID, _ := cmd.Flags().GetString("parent")
		priority, _ := cmd.Flags().GetString("priority")

		if title == "" && isInteractive() {
			if err := runCreateForm(&title, &parentID, &priority); err != nil {
				return err
			}
		}
		if title == "" {
			return fmt.Errorf("--title is required (or run interactively)")
		}

		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, _ := json.Marshal(map[string]any{
			"create": []map[string]any{{"title": title, "parentId": parentID, "priority": priority}},
		})
		env := srv.Dispatch(context.Background(), "manage_items", payload)
		return printEnvelope(env)
	},
}

// runCreateForm falls back to an interactive huh form when required
// flags are omitted and stdout is a terminal (SPEC_FULL.md §9.3).
func runCreateForm(title, parentID, priority *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(title),
			huh.NewInput().Title("Parent ID (optional)").Value(parentID),
			huh.NewSelect[string]().
				Title("Priority").
				Options(huh.NewOptions("high", "medium", "low")...).
				Value(priority),
		),
	)
	return form.Run()
}

var itemGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a single work item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"op": "get", "id": args[0]})
		return printEnvelope(srv.Dispatch(context.Background(), "query_items", payload))
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a work item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		payload, _ := json.Marshal(map[string]any{"delete": []string{args[0]}, "recursive": recursive})
		return printEnvelope(srv.Dispatch(context.Background(), "manage_items", payload))
	},
}

func init() {
	itemCreateCmd.Flags().String("title", "", "item title")
	itemCreateCmd.Flags().String("parent", "", "parent item id")
	itemCreateCmd.Flags().String("priority", "medium", "priority (high|medium|low)")
	itemDeleteCmd.Flags().Bool("recursive", false, "delete the item's subtree as well")

	itemCmd.AddCommand(itemCreateCmd, itemGetCmd, itemDeleteCmd)
	rootCmd.AddCommand(itemCmd)
}
