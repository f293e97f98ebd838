package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"promopush/internal/broker"
	"promopush/internal/catalog"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect service configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the config file without connecting to anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "input_topic=%s output_topic=%s group=%s\n",
				cfg.Broker.Kafka.InputTopic, cfg.Broker.Kafka.OutputTopic, cfg.Broker.Kafka.GroupID)
			fmt.Fprintf(out, "postgres=%s:%d/%s feedback_table=%s\n",
				cfg.Database.Postgres.Host, cfg.Database.Postgres.Port, cfg.Database.Postgres.DBName, cfg.Feedback.Table)
			fmt.Fprintln(out, "config ok")
			return nil
		},
	})
	return cmd
}

func (c *cli) catalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Operate on the subscriber catalog"}

	var changedBy string
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Ask every running instance to reload the catalog via the control topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, flush, err := c.setup()
			if err != nil {
				return err
			}
			defer flush()

			topic := cfg.Broker.Kafka.CatalogRefreshTopic
			if topic == "" {
				return fmt.Errorf("broker.kafka.catalog_refresh_topic is not configured")
			}

			producer, err := broker.NewProducer(cfg.Broker, log)
			if err != nil {
				return err
			}
			defer producer.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := catalog.NewNotifier(producer, topic).PublishRefresh(ctx, changedBy); err != nil {
				return fmt.Errorf("publish refresh: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refresh published to %s\n", topic)
			return nil
		},
	}
	refresh.Flags().StringVar(&changedBy, "by", "cli", "operator recorded on the control event")

	cmd.AddCommand(refresh)
	return cmd
}
