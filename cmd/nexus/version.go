package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nexus/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// Printing the version needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nexus version %s\n", version.Get())
	},
}
