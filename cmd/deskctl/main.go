package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vendordesk/internal/client"
	"vendordesk/internal/display"
	pkgconfig "vendordesk/pkg/config"
	"vendordesk/pkg/logger"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	apiURL     string
	jsonOutput bool
	verbose    bool
	timeout    time.Duration

	api     *client.Client
	printer *display.Printer
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "deskctl",
	Short:         "deskctl - operator console for vendordesk",
	Long:          "Browse email threads and shipment sessions, reply to senders and assign vendors from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logger.NewDevelopment(verbose)
		api = client.New(apiURL, timeout)
		printer = display.NewPrinter(cmd.OutOrStdout(), !jsonOutput && display.ColorEnabled(os.Stdout))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("deskctl version %s\n", Version)
	},
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", pkgconfig.GetEnv("DESK_API_URL", "http://localhost:8080"), "vendordesk API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if printer != nil {
			printer.Error("%v", err)
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}
