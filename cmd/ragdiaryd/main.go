// Ragdiaryd is the RAG diary engine's CLI: it indexes diary directories
// into per-diary vector stores and a global tag index, answers ad-hoc
// placeholder queries, and runs the file-watching daemon with a metrics
// endpoint.
//
// Usage:
//
//	# Build/refresh the indexes for a diary root
//	ragdiaryd index --config config.yaml
//
//	# Rewrite the placeholders in a system-prompt file
//	ragdiaryd query --config config.yaml --prompt prompt.txt --user "介绍猫" --ai "好的"
//
//	# Watch the diary tree and serve /metrics
//	ragdiaryd serve --config config.yaml
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ragdiaryd",
	Short:   "RAG diary engine daemon and indexing CLI",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.config/ragdiaryd/config.yaml)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
}
