// Command ravelctl is the operator CLI for the work-item orchestration
// engine: each of the 13 tools is reachable as a subcommand against a
// local database file, styled for an interactive terminal and falling
// back to plain text when piped.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ravelctl",
	Short: "Operate a ravel work-item database from the command line",
	Long: `ravelctl drives the ravel work-item orchestration engine directly
against a local database file, without going through the tool-call
transport. Use it to seed trees, inspect state, and advance items
while developing or operating an engine instance.`,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "items", Title: "Item commands:"},
		&cobra.Group{ID: "workflow", Title: "Workflow commands:"},
		&cobra.Group{ID: "query", Title: "Query commands:"},
	)
	rootCmd.PersistentFlags().String("db", "", "database path (default: $DATABASE_PATH or ./ravel.db)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ravelctl:", err)
		os.Exit(1)
	}
}
