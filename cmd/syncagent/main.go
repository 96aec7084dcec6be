package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/photosync/syncagent/internal/handlers"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncagent",
	Short: "Incremental photo gallery sync agent",
	Long: `syncagent keeps a photo gallery synchronized with a remote store.

It tracks which spans of the photo timeline are already synced as a set of
time intervals. A full scan fills every gap from the beginning of time to
the newest photo; "sync from now" keeps uploading photos taken after it was
enabled. Progress is checkpointed after every batch so interrupted runs
resume where they stopped.`,
	SilenceUsage: true,
	Version:      handlers.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv("CONFIG_PATH", configPath)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default $CONFIG_PATH or ./config.json)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "run", Title: "Running:"},
		&cobra.Group{ID: "state", Title: "Sync state:"},
	)
	rootCmd.AddCommand(serveCmd, scanCmd, tickCmd, anchorCmd, intervalsCmd, resetCmd, hashKeyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
