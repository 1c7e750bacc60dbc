package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	reportRecentLimit int
	reportPlain       bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a feedback report for the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer, store, err := openAnalyzer()
		if err != nil {
			return err
		}
		defer store.Close()

		md, err := analyzer.Report(sinceWindow(), reportRecentLimit)
		if err != nil {
			return err
		}

		if reportPlain {
			fmt.Print(md)
			return nil
		}

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			// Fall back to raw markdown when the terminal can't be probed.
			fmt.Print(md)
			return nil
		}
		out, err := renderer.Render(md)
		if err != nil {
			fmt.Print(md)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportRecentLimit, "recent", 20, "number of recent attempts to include")
	reportCmd.Flags().BoolVar(&reportPlain, "plain", false, "print raw markdown without styling")
}
