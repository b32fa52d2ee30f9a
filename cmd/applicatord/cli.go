package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/waqasshaukat/job-applicator/internal/config"
	"github.com/waqasshaukat/job-applicator/internal/jobmanager"
)

func rootCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		maxJobs    int
		apiToken   string
		debug      bool
	)

	c := &cobra.Command{
		Use:     "applicatord",
		Short:   "HTTP server for running and observing job-application sessions",
		Example: "  applicatord --max-jobs 2 --debug",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flags beat file and environment.
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("max-jobs") {
				cfg.MaxConcurrentJobs = maxJobs
			}
			if flags.Changed("api-token") {
				cfg.APIToken = apiToken
			}
			if debug {
				cfg.LogLevel = "debug"
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			manager, err := jobmanager.NewManager(cfg.MaxConcurrentJobs, logger)
			if err != nil {
				return err
			}

			return newServer(manager, logger, cfg).run(cmd.Context())
		},
	}

	c.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	c.Flags().StringVar(&host, "host", "localhost", "Host to bind")
	c.Flags().IntVar(&port, "port", 8080, "Port to bind")
	c.Flags().IntVar(&maxJobs, "max-jobs", 2, "Maximum concurrently running jobs")
	c.Flags().StringVar(&apiToken, "api-token", "", "Bearer token required on /api routes (empty disables auth)")
	c.Flags().BoolVar(&debug, "debug", false, "Enable debug logs")

	return c
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zc zap.Config
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
