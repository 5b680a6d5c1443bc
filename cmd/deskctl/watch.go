package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vendordesk/internal/dashboard"
	"vendordesk/internal/poller"
)

const clearScreen = "\033[H\033[2J"

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh threads, sessions and stats on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var mu sync.Mutex
		out := cmd.OutOrStdout()

		render := func(ctx context.Context) error {
			snap, err := dashboard.Fetch(ctx, api)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if jsonOutput {
				return writeJSON(cmd, snap)
			}
			fmt.Fprint(out, clearScreen)
			printer.Summary(snap.Summary)
			fmt.Fprintln(out)
			printer.Header("Threads")
			printer.Threads(snap.Threads)
			fmt.Fprintln(out)
			printer.Header("Sessions")
			printer.Sessions(snap.Sessions, snap.VendorNames())
			fmt.Fprintf(out, "\nUpdated %s, every %s. Ctrl-C to quit.\n", snap.FetchedAt.Format(time.Kitchen), watchInterval)
			return nil
		}

		p := poller.New(watchInterval, render,
			poller.WithTimeout(timeout),
			poller.WithLogger(log),
			poller.WithErrorHandler(func(err error) {
				mu.Lock()
				defer mu.Unlock()
				printer.Error("refresh failed: %v", err)
			}),
		)
		p.Run(ctx)
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Second, "Refresh interval")
	rootCmd.AddCommand(watchCmd)
}
