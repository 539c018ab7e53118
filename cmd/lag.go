package main

import (
	"encoding/json"
	"fmt"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/lag"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/logger"
	"github.com/spf13/cobra"
)

func lagCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "lag",
		Short: "Print the consumer group lag",
		Long: `Compute the total lag of the consumer group on the inbound topic.

A failed offset query prints status "unknown" with a lag of 0.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if group == "" {
				group = cfg.Kafka.GroupID
			}
			monitor := lag.NewMonitor(
				lag.NewKafkaSource(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, lagQueryTimeout),
				cfg.Lag.WarnThreshold,
				nil,
				log,
			)

			report := monitor.Report(cmd.Context(), group)
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "consumer group (defaults to KAFKA_GROUP_ID)")

	return cmd
}
