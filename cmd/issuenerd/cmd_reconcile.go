package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"issuenerd/internal/reconcile"
)

var reconcileStatusFile string

// reconcileCmd runs one reconciliation pass. The external platform is
// reached through an injected lookup; this command feeds it from a
// JSON snapshot file produced by whatever fetches platform state, so
// the subsystem itself never needs platform credentials.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile RESOLVED attempts against external change status",
	Long: `Reconciles locally RESOLVED attempts against the review platform.

The --statuses file maps change refs to their external status:

  {"55": "MERGED", "56": "CLOSED", "57": "STILL_OPEN"}

Change refs absent from the file are treated as NOT_FOUND.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		lookup, err := fileStatusLookup(reconcileStatusFile)
		if err != nil {
			return err
		}

		minAge, err := cfg.MinResolvedAge()
		if err != nil {
			return err
		}
		timeout, err := cfg.LookupTimeout()
		if err != nil {
			return err
		}

		job, err := reconcile.NewJob(store, lookup, minAge, timeout)
		if err != nil {
			return err
		}
		report, err := job.Run(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// fileStatusLookup builds a StatusLookup backed by a JSON snapshot of
// change-ref statuses.
func fileStatusLookup(path string) (reconcile.StatusLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}

	statuses := make(map[int64]reconcile.ChangeStatus, len(raw))
	for ref, st := range raw {
		var id int64
		if _, err := fmt.Sscanf(ref, "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid change ref %q in status file", ref)
		}
		switch s := reconcile.ChangeStatus(st); s {
		case reconcile.ChangeMerged, reconcile.ChangeClosed,
			reconcile.ChangeStillOpen, reconcile.ChangeNotFound:
			statuses[id] = s
		default:
			return nil, fmt.Errorf("unknown status %q for change ref %s", st, ref)
		}
	}

	return func(ctx context.Context, changeRef int64) (reconcile.ChangeStatus, error) {
		if st, ok := statuses[changeRef]; ok {
			return st, nil
		}
		return reconcile.ChangeNotFound, nil
	}, nil
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileStatusFile, "statuses", "", "JSON file mapping change refs to external status")
	_ = reconcileCmd.MarkFlagRequired("statuses")
}
