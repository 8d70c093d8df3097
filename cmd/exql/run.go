// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/canonical/exql"
)

// RunOptions holds the flags of the commands that run a template on the
// configured database.
type RunOptions struct {
	*RootOptions
	InputOptions
}

// NewExecCommand creates the exec command, which runs a statement that
// returns no rows and prints the number of rows affected.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec [template]",
		Short: "Run a statement on the configured database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatement(cmd, opts, args, execStatement)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

// NewQueryCommand creates the query command, which runs a query and prints
// the rows it returns.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [template]",
		Short: "Run a query on the configured database and print the rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatement(cmd, opts, args, queryStatement)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

type runner func(q *exql.Query) (any, error)

func execStatement(q *exql.Query) (any, error) {
	var outcome exql.Outcome
	if err := q.Get(&outcome); err != nil {
		return nil, err
	}
	n, err := outcome.Result().RowsAffected()
	if err != nil {
		return nil, err
	}
	return map[string]int64{"rows-affected": n}, nil
}

func queryStatement(q *exql.Query) (any, error) {
	var rows []map[string]any
	err := q.GetAll(&rows)
	if errors.Is(err, exql.ErrNoRows) {
		return []map[string]any{}, nil
	}
	return rows, err
}

func runStatement(cmd *cobra.Command, opts *RunOptions, args []string, run runner) error {
	template, err := opts.template(args)
	if err != nil {
		return err
	}
	params, err := opts.params()
	if err != nil {
		return err
	}
	stmt, err := opts.compiler().Prepare(template, opts.constants())
	if err != nil {
		return err
	}

	db, err := openDB(opts.RootOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := run(db.Query(cmd.Context(), stmt, params))
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return err
	}
	return enc.Close()
}

// openDB opens the configured database and runs the init statements on it.
func openDB(opts *RootOptions) (*exql.DB, error) {
	cfg := opts.config
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if cfg.DSN == ":memory:" {
		// Every connection to :memory: opens a new database.
		sqldb.SetMaxOpenConns(1)
	}
	for _, stmt := range cfg.Init {
		if _, err := sqldb.Exec(stmt); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("cannot run init statement %q: %w", stmt, err)
		}
	}
	return exql.NewDB(sqldb, exql.WithStatementCacheSize(cfg.StatementCacheSize), exql.WithDBLogger(opts.logger)), nil
}
