package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repolens/internal/app"
	"repolens/internal/config"
	"repolens/internal/logging"
)

var rootFlags struct {
	config   string
	logLevel string
}

// appOptions is passed to app.New by every command.
var appOptions app.Options

var rootCmd = &cobra.Command{
	Use:   "repolens",
	Short: "Answer questions about GitHub repositories from targeted evidence",
	Long: "repolens classifies a question, fetches only the repository evidence it needs\n" +
		"in parallel, and asks a language model to answer from that evidence.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "config file (default ./repolens.yaml or ~/.config/repolens/repolens.yaml)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.Version = app.Version
}

// loadApp reads configuration and builds the application for cmd.
// The caller closes it.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, logger, appOptions)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
