package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"issuenerd/internal/outcome"
)

var (
	attemptLabels       string
	attemptChangeRef    int64
	attemptFilesChanged int
)

// attemptCmd groups the lifecycle operations on a single attempt.
// These are the same calls the resolution workflow makes; exposing
// them here makes manual correction and scripting possible.
var attemptCmd = &cobra.Command{
	Use:   "attempt",
	Short: "Record and transition resolution attempts",
}

var attemptRecordCmd = &cobra.Command{
	Use:   "record [work-item-id]",
	Short: "Record a new resolution attempt (PENDING)",
	Long: `Records that a resolution attempt has started on a work item.
The category is derived from --labels via the configured classifier.
Re-recording a non-merged attempt resets it to PENDING.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWorkItemID(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		category := defaultClassifier().Classify(splitLabels(attemptLabels))
		att, err := store.RecordAttempt(id, category)
		if err != nil {
			return err
		}
		return printAttempt(att)
	},
}

var attemptResolveCmd = &cobra.Command{
	Use:   "resolve [work-item-id]",
	Short: "Mark a PENDING attempt RESOLVED",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWorkItemID(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		att, err := store.MarkResolved(id, attemptChangeRef, attemptFilesChanged)
		if err != nil {
			return err
		}
		return printAttempt(att)
	},
}

var attemptFailCmd = &cobra.Command{
	Use:   "fail [work-item-id] [message]",
	Short: "Mark a PENDING attempt FAILED",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWorkItemID(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		att, err := store.MarkFailed(id, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printAttempt(att)
	},
}

var attemptShowCmd = &cobra.Command{
	Use:   "show [work-item-id]",
	Short: "Show a recorded attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWorkItemID(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		att, err := store.Get(id)
		if err != nil {
			return err
		}
		return printAttempt(att)
	},
}

func parseWorkItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid work item id %q", s)
	}
	return id, nil
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printAttempt(att *outcome.Attempt) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(att)
}

func init() {
	attemptRecordCmd.Flags().StringVar(&attemptLabels, "labels", "", "comma-separated work item labels")
	attemptResolveCmd.Flags().Int64Var(&attemptChangeRef, "change-ref", 0, "review platform change number")
	attemptResolveCmd.Flags().IntVar(&attemptFilesChanged, "files-changed", 0, "number of files touched")
	_ = attemptResolveCmd.MarkFlagRequired("change-ref")

	attemptCmd.AddCommand(attemptRecordCmd)
	attemptCmd.AddCommand(attemptResolveCmd)
	attemptCmd.AddCommand(attemptFailCmd)
	attemptCmd.AddCommand(attemptShowCmd)
}
