package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	exportOut         string
	exportRecentLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write aggregate statistics and recent attempts as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer, store, err := openAnalyzer()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := analyzer.WriteExport(exportOut, sinceWindow(), exportRecentLimit); err != nil {
			return err
		}
		fmt.Println("Export written to", exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "issuenerd-export.json", "output path")
	exportCmd.Flags().IntVar(&exportRecentLimit, "recent", 20, "number of recent attempts to include")
}
