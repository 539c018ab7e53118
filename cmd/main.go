// Package main is the entry point for the event processor.
// The event processor consumes business events from Kafka, validates and enriches them,
// stores them with idempotency guarantees and routes every failure to a dead-letter topic.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "event-processor",
		Short:         "Event processor - Kafka event ingestion with dead-letter routing",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(lagCmd())
	rootCmd.AddCommand(dlqSampleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
