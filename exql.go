// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package exql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/canonical/exql/internal/typeinfo"
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// DBOption configures a [DB].
type DBOption func(*dbConfig)

type dbConfig struct {
	cacheSize int
	logger    *slog.Logger
}

// WithStatementCacheSize sets the number of driver prepared statements kept
// open by the DB. A size of zero or less disables statement caching.
func WithStatementCacheSize(size int) DBOption {
	return func(c *dbConfig) {
		c.cacheSize = size
	}
}

// WithDBLogger sets the logger the DB reports executed statements to.
func WithDBLogger(logger *slog.Logger) DBOption {
	return func(c *dbConfig) {
		c.logger = logger
	}
}

// DB runs rendered statements on a database.
type DB struct {
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
	// stmts caches the statements prepared on sqldb. It is nil when
	// caching is disabled.
	stmts  *statementCache
	logger *slog.Logger
}

// NewDB creates a new [DB] from a [sql.DB].
func NewDB(sqldb *sql.DB, opts ...DBOption) *DB {
	if sqldb == nil {
		return nil
	}
	cfg := dbConfig{
		cacheSize: DefaultStatementCacheSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	db := &DB{sqldb: sqldb, logger: cfg.logger}
	if cfg.cacheSize > 0 {
		// The size is positive so creating the cache cannot fail.
		db.stmts, _ = newStatementCache(cfg.cacheSize)
	}
	return db
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Close closes the cached prepared statements and the underlying database.
func (db *DB) Close() error {
	if db.stmts != nil {
		db.stmts.purge()
	}
	return db.sqldb.Close()
}

// runFunc executes a rendered statement. If query is true the statement is
// expected to return rows, otherwise it is executed for its result.
type runFunc func(ctx context.Context, query bool) (*sql.Rows, sql.Result, error)

// Query is a rendered statement bound to a database or transaction. The
// statement is executed by the first of its run methods to be called.
type Query struct {
	run runFunc
	ctx context.Context
	err error
}

// Iterator reads the rows returned by a [Query] and scans them into
// structs, maps or plain values.
type Iterator struct {
	rows    *sql.Rows
	cols    []string
	err     error
	result  sql.Result
	started bool
}

// render renders s with params and logs the result.
func render(logger *slog.Logger, s *Statement, params Params) (*Rendered, error) {
	r, err := s.Render(params)
	if err != nil {
		return nil, err
	}
	logger.Debug("running statement", "sql", r.SQL(), "args", r.Args())
	return r, nil
}

// exec runs a rendered statement on a prepared statement.
func exec(ctx context.Context, sqlstmt *sql.Stmt, r *Rendered, query bool) (rows *sql.Rows, result sql.Result, err error) {
	if query {
		rows, err = sqlstmt.QueryContext(ctx, r.Args()...)
	} else {
		result, err = sqlstmt.ExecContext(ctx, r.Args()...)
	}
	return rows, result, err
}

// Query renders the [Statement] with params and builds a new query from it.
// The query is run on the database when one of [Query.Iter], [Query.Run],
// [Query.Get] or [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, s *Statement, params Params) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := render(db.logger, s, params)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context, query bool) (rows *sql.Rows, result sql.Result, err error) {
		if db.stmts == nil {
			if query {
				rows, err = db.sqldb.QueryContext(innerCtx, r.SQL(), r.Args()...)
			} else {
				result, err = db.sqldb.ExecContext(innerCtx, r.SQL(), r.Args()...)
			}
			return rows, result, err
		}
		err = db.stmts.use(innerCtx, db.sqldb, r.SQL(), func(sqlstmt *sql.Stmt) error {
			var err error
			rows, result, err = exec(innerCtx, sqlstmt, r, query)
			return err
		})
		return rows, result, err
	}

	return &Query{run: run, ctx: ctx}
}

// Run is used to run a query on a database and disregard any results.
// Run is an alias for [Query.Get] that takes no arguments.
func (q *Query) Run() error {
	return q.Get()
}

// Get runs the query and decodes the first row returned into the provided output
// arguments. It returns [ErrNoRows] if output arguments were provided but no
// results were found. Without output arguments the statement is executed
// and no rows are read.
//
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable to fill it with information about query execution.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(outputArgs) > 0 {
		if oc, ok := outputArgs[0].(*Outcome); ok {
			outcome = oc
			outputArgs = outputArgs[1:]
		}
	}
	hasOutputs := len(outputArgs) > 0

	var err error
	iter := q.iter(hasOutputs)
	if outcome != nil {
		err = iter.Get(outcome)
	}
	if err == nil && !iter.Next() {
		err = iter.Close()
		if err == nil && hasOutputs {
			err = ErrNoRows
		}
		return err
	}
	if err == nil {
		err = iter.Get(outputArgs...)
	}
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	return q.iter(true)
}

func (q *Query) iter(query bool) *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}

	var cols []string
	rows, result, err := q.run(q.ctx, query)
	if query && err == nil {
		cols, err = rows.Columns()
		if err != nil {
			rows.Close()
		}
	}
	if err != nil {
		return &Iterator{err: err}
	}

	return &Iterator{rows: rows, cols: cols, result: result}
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Get decodes the result from the previous [Iterator.Next] call into the
// provided output arguments. The output arguments are either a pointer to a
// struct, whose fields are matched to columns by "db" tag or name, a map
// with string keys, or one pointer per column.
//
// Before the first call of [Iterator.Next] a pointer to an empty [Outcome]
// struct may be passed to Get as the only argument to fill it information
// about query execution.
func (iter *Iterator) Get(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if !iter.started {
		if len(outputArgs) == 1 {
			if oc, ok := outputArgs[0].(*Outcome); ok {
				oc.result = iter.result
				return nil
			}
		}
		return fmt.Errorf("cannot call Get before Next unless getting outcome")
	}

	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}

	ptrs, proxies, err := typeinfo.ScanTargets(iter.cols, outputArgs)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	for _, proxy := range proxies {
		proxy.OnSuccess()
	}
	return nil
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	if err == nil {
		err = iter.rows.Err()
	}
	iter.rows = nil
	if iter.err == nil {
		iter.err = err
	}
	return iter.err
}

// Outcome receives the [sql.Result] of an executed statement when passed as
// the first output of [Query.Get], [Query.GetAll] or [Iterator.Get].
type Outcome struct {
	result sql.Result
}

// Result returns the result of the statement. It is nil when the statement
// was run as a query returning rows.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// GetAll iterates over the query and scans all rows into the provided slices.
// Each of sliceArgs must be a pointer to a slice of structs, pointers to
// structs, maps, or of a plain type scanned from one column.
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable to get information about query execution.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(sliceArgs ...any) (err error) {
	if q.err != nil {
		return q.err
	}

	if len(sliceArgs) > 0 {
		if outcome, ok := sliceArgs[0].(*Outcome); ok {
			outcome.result = nil
			sliceArgs = sliceArgs[1:]
		}
	}
	// Every output must be a non-nil pointer to a slice.
	var slicePtrVals = []reflect.Value{}
	var sliceVals = []reflect.Value{}
	for _, ptr := range sliceArgs {
		ptrVal := reflect.ValueOf(ptr)
		if ptrVal.Kind() != reflect.Pointer {
			return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
		}
		if ptrVal.IsNil() {
			return fmt.Errorf("need pointer to slice, got nil")
		}
		slicePtrVals = append(slicePtrVals, ptrVal)
		sliceVal := ptrVal.Elem()
		if sliceVal.Kind() != reflect.Slice {
			return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
		}
		sliceVals = append(sliceVals, sliceVal)
	}

	// Each row is scanned into fresh elements appended to the slices, which
	// are only stored once all rows have been read.
	rowsReturned := false
	iter := q.Iter()
	for iter.Next() {
		rowsReturned = true
		var outputArgs = []any{}
		for _, sliceVal := range sliceVals {
			outputArgs = append(outputArgs, newOutput(sliceVal.Type().Elem()).Interface())
		}
		if err := iter.Get(outputArgs...); err != nil {
			iter.Close()
			return err
		}
		for i, outputArg := range outputArgs {
			switch sliceVals[i].Type().Elem().Kind() {
			case reflect.Map:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg))
			case reflect.Pointer:
				if sliceVals[i].Type().Elem().Elem().Kind() == reflect.Struct {
					sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg))
					continue
				}
				fallthrough
			default:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg).Elem())
			}
		}
	}
	err = iter.Close()
	if err != nil {
		return err
	} else if !rowsReturned && len(sliceArgs) > 0 {
		return ErrNoRows
	}

	for i, ptrVal := range slicePtrVals {
		ptrVal.Elem().Set(sliceVals[i])
	}

	return nil
}

// newOutput returns a value that one row can be scanned into for a slice
// with elements of type t.
func newOutput(t reflect.Type) reflect.Value {
	switch {
	case t.Kind() == reflect.Map:
		return reflect.MakeMap(t)
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return reflect.New(t.Elem())
	}
	return reflect.New(t)
}

// TX runs rendered statements in a database transaction. Statements from
// the DB statement cache are reused within it.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction on the underlying database. It must be ended
// with [TX.Commit] or [TX.Rollback], after which its queries fail with
// [ErrTXDone].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction. It returns [ErrTXDone] if the transaction
// has already ended.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction. It returns [ErrTXDone] if the
// transaction has already ended.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions is passed to [DB.Begin]. A nil TXOptions uses the driver
// defaults.
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query renders the [Statement] with params and builds a new query from it
// that runs in the transaction.
func (tx *TX) Query(ctx context.Context, s *Statement, params Params) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	r, err := render(tx.db.logger, s, params)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context, query bool) (rows *sql.Rows, result sql.Result, err error) {
		if tx.db.stmts != nil {
			// Register the cached statement on the transaction. Note that
			// this does not re-prepare the statement on the driver. The
			// transaction statement is closed by database/sql when the
			// transaction is committed or rolled back.
			ok, err := tx.db.stmts.useCached(r.SQL(), func(sqlstmt *sql.Stmt) error {
				var err error
				rows, result, err = exec(innerCtx, tx.sqltx.StmtContext(innerCtx, sqlstmt), r, query)
				return err
			})
			if ok {
				return rows, result, err
			}
		}

		if query {
			rows, err = tx.sqltx.QueryContext(innerCtx, r.SQL(), r.Args()...)
		} else {
			result, err = tx.sqltx.ExecContext(innerCtx, r.SQL(), r.Args()...)
		}
		return rows, result, err
	}

	return &Query{ctx: ctx, run: run}
}
