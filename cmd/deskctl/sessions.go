package main

import (
	"github.com/spf13/cobra"

	"vendordesk/internal/status"
)

var sessionsTab string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List shipment sessions by vendor status",
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, err := status.ParseTab(sessionsTab)
		if err != nil {
			return err
		}

		sessions, err := api.Sessions(cmd.Context(), string(tab))
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd, sessions)
		}

		vendors, err := api.Vendors(cmd.Context())
		if err != nil {
			return err
		}
		names := make(map[int64]string, len(vendors))
		for _, v := range vendors {
			names[v.ID] = v.Name
		}

		printer.Header("Sessions (" + string(tab) + ")")
		printer.Sessions(sessions, names)
		return nil
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsTab, "tab", "all", "all, unassigned, pending_reply or replied")
	rootCmd.AddCommand(sessionsCmd)
}
