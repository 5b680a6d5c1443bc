package main

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard counters and vendor response rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := api.Summary(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd, summary)
		}
		printer.Summary(summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
