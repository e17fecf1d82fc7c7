// Package main is the entry point for mcp-project-manager.
package main

import (
	"os"

	"github.com/ACNet-AI/mcp-project-manager-sub001/cmd/mcp-project-manager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
