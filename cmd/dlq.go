package main

import (
	"encoding/json"
	"fmt"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/dlq"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/logger"
	"github.com/spf13/cobra"
)

func dlqSampleCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dlq-sample",
		Short: "Print the most recent dead-letter records",
		Long: `Read up to --limit recent records from the dead-letter topic, newest first.

The read is time-boxed by DLQ_SAMPLE_TIMEOUT and does not commit any offsets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sampler := dlq.NewSampler(cfg.DLQ.Brokers, cfg.DLQ.Topic, cfg.DLQ.SampleTimeout, log)
			records := sampler.Sample(cmd.Context(), dlq.ClampLimit(limit))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(records); err != nil {
				return fmt.Errorf("encode records: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", dlq.DefaultSampleLimit, "maximum records")

	return cmd
}
