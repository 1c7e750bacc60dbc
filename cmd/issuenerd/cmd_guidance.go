package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// guidanceCmd prints the generation guidance as JSON, the form the
// work-item generation side consumes.
var guidanceCmd = &cobra.Command{
	Use:   "guidance",
	Short: "Compute category weighting guidance for generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer, store, err := openAnalyzer()
		if err != nil {
			return err
		}
		defer store.Close()

		g, err := analyzer.BuildGuidance(sinceWindow())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	},
}
