package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags
// "-X main.version=$(git describe --tags)".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the unshacledd version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
