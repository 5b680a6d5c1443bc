package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var assignCmd = &cobra.Command{
	Use:   "assign <session-id> <vendor-id>",
	Short: "Assign a vendor to a shipment session and notify them",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", args[0])
		}
		vendorID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid vendor id %q", args[1])
		}

		session, err := api.Assign(cmd.Context(), sessionID, vendorID)
		if err != nil {
			return fmt.Errorf("assign session %d: %w", sessionID, err)
		}
		if jsonOutput {
			return writeJSON(cmd, session)
		}
		printer.Success("Session #%d assigned to vendor #%d, notification queued", session.ID, vendorID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assignCmd)
}
