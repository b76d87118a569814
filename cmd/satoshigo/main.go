// satoshigo runs the SatoshiGo treasure hunt engine.
//
// Usage:
//
//	satoshigo serve              - Start the HTTP API and the broadcast feed
//	satoshigo export <game>...   - Write games as gzip JSON documents
//
// Global flags:
//
//	--config-dir <dir>  - Directory containing satoshigo.cfg.json (default: .)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"
)

var flagConfigDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "satoshigo",
	Short: "SatoshiGo - location-based treasure hunts paid in sats",
	Long: `SatoshiGo turns Lightning payments into collectible items placed on a map.

Operators fund a rectangle of a game, the engine scatters areas holding
items inside it, and players claim those items by visiting them.

Available commands:
  serve    - Start the HTTP API and the broadcast feed
  export   - Write games as gzip JSON documents

Examples:
  satoshigo serve
  satoshigo serve --config-dir /etc/satoshigo
  satoshigo export 0b6f5c1e-2c4d-4c1f-9d61-0a4c2f3b7e11 --out ./exports`,
	Version:      CurrentVersion,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", ".", "Directory containing "+configFileName)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
}
