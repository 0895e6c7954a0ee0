// Package main is the entry point for aoai-relay.
package main

import (
	"context"
	"os"

	"charm.land/fang/v2"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "config.yaml"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aoai-relay",
	Short: "Credential-hiding relay for Azure OpenAI chat completions",
	Long: `aoai-relay is a resilient proxy that sits between browser clients and an
Azure OpenAI chat-completion deployment. It hides the upstream credential,
enforces global and per-caller rate limits, bounds upstream concurrency,
retries transient failures, and deduplicates retried requests.`,
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+" or ~/.config/aoai-relay/"+defaultConfigFile+")")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
