// Package cmd provides the growlog CLI.
//
// Commands:
//   - serve: HTTP API server
//   - ingest: load the seed knowledge base into the vector store
//   - classify: one-shot utterance classification, JSON to stdout
//   - version: version information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/growlog/growlog/internal/config"
	"github.com/growlog/growlog/internal/log"
)

var (
	configFile string
	debugLogs  bool
)

var rootCmd = &cobra.Command{
	Use:           "growlog",
	Short:         "GrowLog - RAG pipeline for a fitness and nutrition assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "enable debug logging")
}

// loadConfig initializes logging and loads configuration. A local
// .env file is applied first so viper sees its variables as
// environment.
func loadConfig() (*config.Config, log.Logger, error) {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if debugLogs || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: true})
	slog.SetDefault(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
