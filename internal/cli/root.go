// Package cli implements the babyrag command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"babyrag/internal/config"
	"babyrag/internal/health"
	"babyrag/internal/observe"
	"babyrag/internal/service"
)

var (
	configPath string
	fakeFlag   bool

	appConfig  *config.AppConfig
	ragService *service.Service
	checkers   []health.Checker
	appMetrics *observe.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "babyrag",
	Short: "Retrieval-augmented question answering over your documents",
	Long: `babyrag chunks and embeds documents into a vector store and answers
questions from the most relevant chunks using a local language model.
With --fake it runs without any backing services.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/babyrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&fakeFlag, "fake", false, "use fake backends instead of live services")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and assembles the service. A service injected
// beforehand (tests) is kept.
func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if appMetrics == nil {
		appMetrics = observe.DefaultMetrics()
	}
	if ragService != nil {
		if fakeFlag {
			ragService.SetFake(true)
		}
		return nil
	}

	var err error
	if configPath == "" {
		appConfig, configPath, err = config.LoadDefault()
	} else {
		appConfig, err = config.Load(configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fakeFlag {
		appConfig.FakeMode = true
	}

	slog.SetDefault(newLogger(appConfig.Server.LogLevel, appConfig.Server.LogFormat, cmd.ErrOrStderr()))
	slog.Debug("config loaded", "path", configPath, "fake", appConfig.FakeMode)

	ragService, checkers, err = buildService(appConfig, appMetrics)
	return err
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
