package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"promopush/internal/config"
	"promopush/internal/logger"
	"promopush/pkg/logging"
)

// cli holds what every subcommand needs before it can touch a dependency.
type cli struct {
	configFile string
	early      *logging.EarlyLog
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{early: logging.NewEarlyLog()}

	root := &cobra.Command{
		Use:           "trigger-service",
		Short:         "Promo campaign trigger service",
		Long:          "Joins live restaurant campaigns with subscribers and fans the result out to Postgres and Kafka",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "path to config file (falls back to CONFIG_FILE)")

	serve := c.serveCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, c.migrateCmd(), c.configCmd(), c.catalogCmd())
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		c.early.Error("no config file: pass --config or set CONFIG_FILE")
		return nil, fmt.Errorf("config file is required")
	}

	cfg, err := config.Load(path)
	if err != nil {
		c.early.Error("load config %s: %v", path, err)
		return nil, err
	}
	return cfg, nil
}

// setup loads config and builds the service logger. The returned func flushes it.
func (c *cli) setup() (*config.Config, logger.Logger, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		c.early.Error("init logger: %v", err)
		return nil, nil, nil, err
	}
	return cfg, log, func() { _ = log.Sync() }, nil
}
