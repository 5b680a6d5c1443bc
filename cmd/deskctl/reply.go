package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var replyCmd = &cobra.Command{
	Use:   "reply <email-id> <text>...",
	Short: "Queue an operator reply to an email",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		emailID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid email id %q", args[0])
		}
		content := strings.TrimSpace(strings.Join(args[1:], " "))
		if content == "" {
			return fmt.Errorf("reply text is empty")
		}

		email, err := api.Reply(cmd.Context(), emailID, content)
		if err != nil {
			return fmt.Errorf("reply to email %d: %w", emailID, err)
		}
		if jsonOutput {
			return writeJSON(cmd, email)
		}
		printer.Success("Reply queued for %s (%d replies on thread)", email.SenderEmail, len(email.Responses))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replyCmd)
}
