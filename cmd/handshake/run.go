package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/najoast/handshake/bootstrap"
	"github.com/najoast/handshake/config"
	"github.com/najoast/handshake/logging"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation to completion",
		Long: `Run spawns one responder and as many requesters as the logout threshold,
waits for every party to finish and prints a summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, v)
		},
	}

	cmd.Flags().IntP("threshold", "n", 0, "logout replies before the responder stops (also the requester count)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "", "log format (json, text)")
	cmd.Flags().String("log-output", "", "log output (stderr, stdout, or a file path)")
	cmd.Flags().Bool("watch", false, "reload mailbox backoffs when the config file changes")
	cmd.Flags().Bool("json", false, "print the full report as JSON")

	for _, name := range []string{"threshold", "log-level", "log-format", "log-output", "watch", "json"} {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}

	return cmd
}

// loadConfig resolves the configuration file, environment and flag overrides
// in that order of increasing precedence. It also returns the file that was
// read, empty when only defaults and the environment applied.
func loadConfig(v *viper.Viper, loader *config.Loader) (*config.Config, string, error) {
	var (
		cfg *config.Config
		err error
	)
	cfgFile := v.GetString("config")
	if cfgFile != "" {
		cfg, err = loader.Load(cfgFile)
	} else {
		cfg, cfgFile, err = loader.AutoLoad()
	}
	if err != nil {
		return nil, "", err
	}

	if v.IsSet("threshold") && v.GetInt("threshold") != 0 {
		cfg.Simulation.LogoutThreshold = v.GetInt("threshold")
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Log.Level = config.LogLevel(strings.ToLower(level))
	}
	if format := v.GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if output := v.GetString("log-output"); output != "" {
		cfg.Log.Output = output
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, cfgFile, nil
}

func runSimulation(cmd *cobra.Command, v *viper.Viper) error {
	loader := config.NewLoader()
	cfg, cfgFile, err := loadConfig(v, loader)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log.Output, cfg.GetLogLevel().String(), cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Close()

	app, err := bootstrap.NewApplication(cfg, logger)
	if err != nil {
		return err
	}

	if v.GetBool("watch") {
		if cfgFile == "" {
			logger.Warn("no config file found, --watch ignored")
		} else {
			logger.Info("watching config file", "file", cfgFile)
			watcher, err := config.NewWatcher(cfgFile, loader, logger)
			if err != nil {
				return fmt.Errorf("failed to watch config: %w", err)
			}
			watcher.OnConfigChange(func(_, newConfig *config.Config) {
				app.ApplyConfig(newConfig)
			})
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()
		}
	}

	report, err := app.Run()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err = fmt.Fprintln(out, report.Summary())
	return err
}
