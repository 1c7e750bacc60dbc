package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCategory string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-category attempt statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer, store, err := openAnalyzer()
		if err != nil {
			return err
		}
		defer store.Close()

		since := sinceWindow()
		stats, err := analyzer.ComputeStats(since)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No attempts recorded in the window.")
			return nil
		}

		categories := make([]string, 0, len(stats))
		for cat := range stats {
			if statsCategory != "" && cat != statsCategory {
				continue
			}
			categories = append(categories, cat)
		}
		sort.Strings(categories)

		fmt.Printf("%-15s %8s %8s %8s %8s %9s %12s\n",
			"CATEGORY", "TOTAL", "MERGED", "FAILED", "PENDING", "SUCCESS", "AVG RESOLVE")
		for _, cat := range categories {
			st := stats[cat]
			fmt.Printf("%-15s %8d %8d %8d %8d %8.0f%% %9.1f min\n",
				cat, st.Total, st.Merged, st.Failed, st.Pending,
				st.SuccessRate*100, st.AvgResolveMinutes)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsCategory, "category", "", "limit output to one category")
}
