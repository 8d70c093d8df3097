// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// RenderOptions holds the flags of the render command.
type RenderOptions struct {
	*RootOptions
	InputOptions
	Plan bool
}

type renderOutput struct {
	Plan string `yaml:"plan,omitempty"`
	SQL  string `yaml:"sql"`
	Args []any  `yaml:"args"`
}

// NewRenderCommand creates the render command, which prints the SQL and
// arguments a template renders to.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render [template]",
		Short: "Render a template to SQL and arguments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Plan, "plan", false, "also print the compiled plan")

	return cmd
}

func runRender(cmd *cobra.Command, opts *RenderOptions, args []string) error {
	template, err := opts.template(args)
	if err != nil {
		return err
	}
	params, err := opts.params()
	if err != nil {
		return err
	}

	plan, err := opts.compiler().Compile(template)
	if err != nil {
		return err
	}
	r, err := plan.Render(params, opts.constants())
	if err != nil {
		return err
	}

	out := renderOutput{SQL: r.SQL(), Args: r.Args()}
	if out.Args == nil {
		out.Args = []any{}
	}
	if opts.Plan {
		out.Plan = plan.String()
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
