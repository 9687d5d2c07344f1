package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var treeCmd = &cobra.Command{
	Use:     "tree",
	GroupID: "workflow",
	Short:   "Create and complete work trees",
}

// treeFile mirrors create_work_tree's request shape so an operator can
// author a whole tree in one YAML document instead of nested flags
// (SPEC_FULL.md §9.3).
type treeFile struct {
	Root     treeItem       `yaml:"root"`
	ParentID string         `yaml:"parentId,omitempty"`
	Children []treeChild    `yaml:"children,omitempty"`
	Deps     []treeDep      `yaml:"deps,omitempty"`
	CreateNotes bool        `yaml:"createNotes,omitempty"`
}

type treeItem struct {
	Title      string   `yaml:"title" json:"title"`
	Summary    string   `yaml:"summary,omitempty" json:"summary,omitempty"`
	Priority   string   `yaml:"priority,omitempty" json:"priority,omitempty"`
	Complexity int      `yaml:"complexity,omitempty" json:"complexity,omitempty"`
	Tags       []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

type treeChild struct {
	Ref      string `yaml:"ref" json:"ref"`
	treeItem `yaml:",inline"`
}

type treeDep struct {
	FromRef   string `yaml:"fromRef" json:"fromRef"`
	ToRef     string `yaml:"toRef" json:"toRef"`
	Type      string `yaml:"type" json:"type"`
	UnblockAt string `yaml:"unblockAt,omitempty" json:"unblockAt,omitempty"`
}

var treeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a work tree from a YAML spec file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return fmt.Errorf("--file is required")
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var tf treeFile
		if err := yaml.Unmarshal(raw, &tf); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, err := json.Marshal(map[string]any{
			"root":        tf.Root,
			"parentId":    tf.ParentID,
			"children":    tf.Children,
			"deps":        tf.Deps,
			"createNotes": tf.CreateNotes,
		})
		if err != nil {
			return err
		}
		return printEnvelope(srv.Dispatch(context.Background(), "create_work_tree", payload))
	},
}

var treeCompleteCmd = &cobra.Command{
	Use:   "complete <root-id> [root-id...]",
	Short: "Complete or cancel a subtree in topological order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		cleanup, _ := cmd.Flags().GetBool("cleanup")

		srv, closeFn, err := openServer(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		payload, _ := json.Marshal(map[string]any{
			"rootIds":         args,
			"mode":            mode,
			"cleanupChildren": cleanup,
		})
		return printEnvelope(srv.Dispatch(context.Background(), "complete_tree", payload))
	},
}

func init() {
	treeCreateCmd.Flags().StringP("file", "f", "", "YAML tree spec file")
	treeCompleteCmd.Flags().String("mode", "complete", "complete|cancel")
	treeCompleteCmd.Flags().Bool("cleanup", false, "delete non-preserved terminal children after completion")

	treeCmd.AddCommand(treeCreateCmd, treeCompleteCmd)
	rootCmd.AddCommand(treeCmd)
}
