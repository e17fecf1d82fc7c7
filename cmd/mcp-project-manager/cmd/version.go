package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ACNet-AI/mcp-project-manager-sub001/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mcp-project-manager", version.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
