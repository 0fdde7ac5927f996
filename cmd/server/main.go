package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/formtagger-api/internal/config"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "formtagger",
		Short: "Form field labeling service for scanned documents",
		Long: `formtagger labels the text of scanned forms (headers, questions, answers)
with a LayoutLM token classifier and returns every labeled token with its
pixel bounding box.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Optional YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPredictCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))

	return cmd
}

func (o *rootOptions) load(jsonLogs bool) (*config.Config, error) {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if jsonLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)))
	}

	return config.Load(o.configPath)
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
