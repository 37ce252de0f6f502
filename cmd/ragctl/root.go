package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/complaints-rag/internal/bootstrap"
	"github.com/kirillkom/complaints-rag/internal/config"
	"github.com/kirillkom/complaints-rag/internal/observability/logging"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Build the complaints index and ask questions against it",
		Long: `ragctl drives the complaints RAG engine from the command line.

Configuration is read from defaults, the YAML file given by --config
(or RAG_CONFIG_FILE) and environment variables, in that order.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRebuildCmd(opts),
		newAskCmd(opts),
		newStatusCmd(opts),
		newMCPCmd(opts),
		newImportCmd(opts),
	)
	return cmd
}

// loadConfig resolves configuration and installs a JSON logger on stderr so
// stdout stays free for answers and protocol traffic.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	if o.configFile != "" {
		if err := os.Setenv(config.FileEnv, o.configFile); err != nil {
			return config.Config{}, nil, fmt.Errorf("set config file: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "ragctl", level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (o *rootOptions) loadApp(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, logger, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cmd.Context(), cfg, logger, nil)
}
