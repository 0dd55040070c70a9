package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/beacon/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon is a protocol client for the event-store server",
	Long: `Beacon is a protocol client for the event-store server.

It speaks the textual command protocol over HTTP (one request per
command) or over a persistent WebSocket/TCP connection (ordered, one
command in flight at a time).`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(ExecCmd)
	RootCmd.AddCommand(DevserverCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
