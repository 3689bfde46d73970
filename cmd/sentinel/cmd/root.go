// Package cmd provides the CLI commands for the Sentinel gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vasuans/sentinel-ai-gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - zero-trust policy gateway for autonomous agents",
	Long: `Sentinel sits between autonomous agents and the backend systems they
act on. Every agent action is authenticated, rate limited, scanned for
sensitive data, evaluated against a live rule set, and answered with
allow, deny, or pending human approval. Every evaluation lands in a
tamper-evident audit trail.

Quick start:
  1. Export COUNTER_STORE_URL / AUDIT_STORE_URL (or run with the
     in-memory stores for a single instance).
  2. Run: sentinel serve

Configuration:
  Config is loaded from sentinel.yaml in the current directory or
  /etc/sentinel/. Environment variables override config values with the
  SENTINEL_ prefix; the core governance keys (MODE, APPROVAL_THRESHOLD,
  BLOCK_THRESHOLD, RATE_LIMIT_REQUESTS, ...) are also read bare.

Commands:
  serve       Start the gateway server
  hash-key    Generate a hash for an agent API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinel.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
