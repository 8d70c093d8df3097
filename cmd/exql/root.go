// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"log/slog"
	"maps"

	"github.com/spf13/cobra"

	"github.com/canonical/exql"
	"github.com/canonical/exql/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Consts     map[string]string

	config *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command for the exql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "exql",
		Short:         "Render and run SQL templates",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if opts.ConfigPath != "" {
				var err error
				if cfg, err = config.Load(opts.ConfigPath); err != nil {
					return err
				}
			}
			level := cfg.LogLevel
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.config = cfg
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output to stderr")
	cmd.PersistentFlags().StringToStringVar(&opts.Consts, "const", nil, "constant bound to the template (key=value), may be repeated")

	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))

	return cmd
}

// constants merges the configured constants with the ones set by flag.
func (opts *RootOptions) constants() exql.Constants {
	consts := exql.Constants(maps.Clone(opts.config.Constants))
	if consts == nil {
		consts = exql.Constants{}
	}
	for k, v := range opts.Consts {
		consts[k] = v
	}
	return consts
}

func (opts *RootOptions) compiler() *exql.Compiler {
	return exql.NewCompiler(exql.WithLogger(opts.logger))
}
