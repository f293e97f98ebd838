package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the micro-batch pipeline and the ops server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, flush, err := c.setup()
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.InfowCtx(ctx, "starting trigger service",
				"input_topic", cfg.Broker.Kafka.InputTopic,
				"output_topic", cfg.Broker.Kafka.OutputTopic,
			)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("initialize: %v", err)
			}
			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "trigger service stopped with error", "error", err)
				return err
			}
			return nil
		},
	}
}
