// Command harrier runs the event pipeline: an ingest API server, queue
// workers for asynchronous processing, and a reconciliation pass for raw
// events that never finished processing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "harrier",
		Short: "Event processing and alerting pipeline",
		Long: `Harrier ingests raw log events, extracts structured fields, enriches
them with geolocation, reverse DNS and threat intelligence, and evaluates
threshold alert rules against the enriched stream.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newReconcileCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
