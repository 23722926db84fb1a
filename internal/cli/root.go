// Package cli implements the finagent command line client.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "finagent",
		Short:         "finagent CLI – conversational financial data analysis",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: finagent.yaml)")

	cmd.AddCommand(NewQueryCmd(opts))
	cmd.AddCommand(NewDatasetsCmd(opts))
	cmd.AddCommand(NewConversationsCmd(opts))
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
