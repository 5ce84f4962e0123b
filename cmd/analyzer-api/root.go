package main

import (
	"github.com/joho/godotenv"
	"github.com/kubev2v/media-analyzer/internal/config"
	"github.com/kubev2v/media-analyzer/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	envFile string
)

var rootCmd = &cobra.Command{
	Use:          "analyzer-api",
	Short:        "Media analyzer service",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to an optional .env file read before the environment")
}

// loadConfig reads the optional .env file, the configuration and sets the global logger.
// The returned func flushes and restores the logger.
func loadConfig() (*config.Config, func(), error) {
	// a missing file is fine, variables may come from the environment
	_ = godotenv.Load(envFile)

	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger := log.InitLog(logLvl, cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
