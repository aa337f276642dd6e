// dispatch is an operator CLI for the LLM dispatch layer: poke a model,
// inspect the capability table, print build info.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chipp-ai/dispatch-sub022/config"
	"github.com/chipp-ai/dispatch-sub022/llm/adapter"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dispatch",
		Short:         "Operator tooling for the LLM dispatch layer",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "dispatch.yaml", "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

func loadFactory(opts *rootOptions) (*adapter.Factory, error) {
	store, err := config.LoadDispatch(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.configPath, err)
	}
	return adapter.NewFactory(store.Get().AdapterConfig()), nil
}
