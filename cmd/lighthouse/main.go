// Package main implements the lighthouse CLI: it gathers page artifacts from
// a live page and audits them for install eligibility.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/garciaii/lighthouse/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	jsonOutput bool

	// Loaded configuration and logger, shared by all subcommands.
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "lighthouse",
	Short: "Audit web pages for installability",
	Long: `lighthouse gathers page artifacts (web app manifest, service worker
registration state, start_url cache probe) from a live page and audits them
against the criteria a browser uses before offering an "install this app"
prompt. Each unmet criterion is reported individually.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if cfg.Logging.Development {
			zcfg = zap.NewDevelopmentConfig()
		}
		zcfg.Level = zap.NewAtomicLevelAt(zapLevel(cfg.Logging.Level))
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "lighthouse.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of text")

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(manifestCmd)
}

// zapLevel maps the configured logging level onto zap, with --verbose
// forcing debug.
func zapLevel(level string) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
