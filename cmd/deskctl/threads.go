package main

import (
	"github.com/spf13/cobra"

	"vendordesk/internal/thread"
)

var threadsLimit int

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List email threads, latest activity first",
	RunE: func(cmd *cobra.Command, args []string) error {
		emails, err := api.Emails(cmd.Context(), threadsLimit)
		if err != nil {
			return err
		}
		threads := thread.Assemble(emails)
		if jsonOutput {
			return writeJSON(cmd, threads)
		}
		printer.Header("Threads")
		printer.Threads(threads)
		return nil
	},
}

func init() {
	threadsCmd.Flags().IntVar(&threadsLimit, "limit", 200, "Number of recent emails to thread")
	rootCmd.AddCommand(threadsCmd)
}
