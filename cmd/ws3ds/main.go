// Command ws3ds finds a ws3ds device on the local network and talks to it.
//
// Usage:
//
//	ws3ds <command> [flags]
//
// Commands:
//
//	search      Interactive session: search, send text and images
//	send-text   Connect, send one text message and exit
//	send-image  Connect, send one image file and exit
//	resolve     Show the local address, subnet prefix and mDNS hints
//	serve       Run the HTTP control surface
//	config      Print the effective configuration
//
// Examples:
//
//	# Scan the local /24 and open an interactive session
//	ws3ds search
//
//	# Skip the scan when the device address is known
//	ws3ds send-text --host 192.168.1.42 "hello"
//
//	# Capture a discovery trace for ws3ds-log
//	ws3ds search --trace-file search.wlog
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ws3ds",
		Short: "Find a ws3ds device on the local network and talk to it",
		Long: `ws3ds races a WebSocket connection to every address of the local /24
(or to one explicit host) and keeps the first one that opens.

Text and images are sent over that single session. Configuration comes
from a YAML file, WS3DS_* environment variables and the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(
		searchCmd(opts),
		sendTextCmd(opts),
		sendImageCmd(opts),
		resolveCmd(opts),
		serveCmd(opts),
		configCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
