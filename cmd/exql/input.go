// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/canonical/exql"
)

// InputOptions holds the flags selecting the template and its parameters.
type InputOptions struct {
	TemplateFile string
	ParamsFile   string
}

func (in *InputOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&in.TemplateFile, "file", "f", "", "read the template from a file")
	cmd.Flags().StringVarP(&in.ParamsFile, "params", "p", "", "YAML file with the template parameters")
}

// template returns the template given either as the only argument or with
// the --file flag.
func (in *InputOptions) template(args []string) (string, error) {
	switch {
	case in.TemplateFile != "" && len(args) > 0:
		return "", fmt.Errorf("cannot use a template argument with --file")
	case in.TemplateFile != "":
		data, err := os.ReadFile(in.TemplateFile)
		if err != nil {
			return "", fmt.Errorf("cannot read template: %w", err)
		}
		return string(data), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", fmt.Errorf("need exactly one template, got %d", len(args))
}

// params reads the parameters file. A YAML mapping holds named parameters
// and a YAML sequence holds positional ones.
func (in *InputOptions) params() (exql.Params, error) {
	if in.ParamsFile == "" {
		return exql.Params{}, nil
	}
	data, err := os.ReadFile(in.ParamsFile)
	if err != nil {
		return nil, fmt.Errorf("cannot read params: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse params: %w", err)
	}
	if len(doc.Content) == 0 {
		return exql.Params{}, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		var named map[string]any
		if err := root.Decode(&named); err != nil {
			return nil, fmt.Errorf("cannot parse params: %w", err)
		}
		return exql.Params(named), nil
	case yaml.SequenceNode:
		var positional []any
		if err := root.Decode(&positional); err != nil {
			return nil, fmt.Errorf("cannot parse params: %w", err)
		}
		return exql.Args(positional...)
	}
	return nil, fmt.Errorf("cannot parse params: need a mapping or a sequence")
}
