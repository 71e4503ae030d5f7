// Package main is the entrypoint for the domain-controller.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "domain-controller",
	Short: "Domain controller for a managed server domain",
	Long: `Domain controller for a managed server domain.

Executes management operations against the domain model and resolves, for the local host,
which servers must apply which operation. Requests arrive over COMMS (NATS) and HTTP.

Environment: COMMS_URL, LOCAL_HOST_NAME, REMOTE_HOSTS, DOMAIN_MODEL_FILE, DOMAIN_LAYOUT_FILE,
DATABASE_URL (optional), MIGRATION_PATH, HTTP_ADDR, LOG_LEVEL, TRACING_*. See README.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, ensureDBCmd, clearCmd, seedCmd, resolveCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "domain-controller: %v\n", err)
		os.Exit(1)
	}
}
