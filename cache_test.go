// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package exql

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"
)

type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) TearDownTest(c *C) {
	// Check every test finishes cleanly.
	s.checkDriverStmtsAllClosed(c)
}

func (s *CacheSuite) TearDownSuite(_ *C) {
	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()
	closedStmts = map[string]map[uintptr]bool{}
	openedStmts = map[string]map[uintptr]string{}

	queriesRunMutex.Lock()
	defer queriesRunMutex.Unlock()
	dbQueriesRun = map[string]int{}
	stmtQueriesRun = map[string]int{}
}

func (s *CacheSuite) TestPreparedStatementReuse(c *C) {
	db := s.openDB(c)
	defer db.Close()
	stmt := NewCompiler().MustPrepare(`SELECT 'test'`, nil)

	err := db.Query(nil, stmt, nil).Run()
	c.Assert(err, IsNil)
	c.Check(db.stmts.len(), Equals, 1)
	s.checkDriverStmtsOpened(c, 1)

	// Check that running a second time does not prepare a second statement.
	err = db.Query(nil, stmt, nil).Run()
	c.Assert(err, IsNil)
	c.Check(db.stmts.len(), Equals, 1)
	s.checkDriverStmtsOpened(c, 1)
	s.checkQueriesRunOnStmt(c, 2)
	s.checkQueriesRunOnDB(c, 0)
}

func (s *CacheSuite) TestStatementPerRenderedSQL(c *C) {
	db := s.openDB(c)
	defer db.Close()
	stmt := NewCompiler().MustPrepare(`SELECT 1 WHERE 1 IN (:ids)`, nil)

	for _, ids := range [][]int{{1}, {1, 2}, {3}, {}} {
		var n int
		err := db.Query(context.Background(), stmt, Params{"ids": ids}).Get(&n)
		if len(ids) == 0 || ids[0] != 1 {
			c.Assert(err, Equals, ErrNoRows)
		} else {
			c.Assert(err, IsNil)
			c.Check(n, Equals, 1)
		}
	}

	// IN (?), IN (?,?) and IN (NULL).
	c.Check(db.stmts.len(), Equals, 3)
	s.checkDriverStmtsOpened(c, 3)
}

func (s *CacheSuite) TestEvictedStatementsAreClosed(c *C) {
	db := s.openDB(c, WithStatementCacheSize(2))
	defer db.Close()
	compiler := NewCompiler()

	for _, q := range []string{`SELECT 1`, `SELECT 2`, `SELECT 3`} {
		err := db.Query(nil, compiler.MustPrepare(q, nil), nil).Run()
		c.Assert(err, IsNil)
	}
	c.Check(db.stmts.len(), Equals, 2)
	s.checkDriverStmtsOpened(c, 3)
	s.checkDriverStmtsClosed(c, 1)
}

func (s *CacheSuite) TestCacheDisabled(c *C) {
	db := s.openDB(c, WithStatementCacheSize(0))
	defer db.Close()
	c.Assert(db.stmts, IsNil)

	stmt := NewCompiler().MustPrepare(`SELECT :1`, nil)
	args, err := Args("a")
	c.Assert(err, IsNil)
	var out string
	err = db.Query(nil, stmt, args).Get(&out)
	c.Assert(err, IsNil)
	c.Check(out, Equals, "a")
	s.checkQueriesRunOnStmt(c, 0)
	s.checkQueriesRunOnDB(c, 1)
}

func (s *CacheSuite) TestCloseClosesStatements(c *C) {
	db := s.openDB(c)
	compiler := NewCompiler()
	for _, q := range []string{`SELECT 1`, `SELECT 2`} {
		err := db.Query(nil, compiler.MustPrepare(q, nil), nil).Run()
		c.Assert(err, IsNil)
	}
	s.checkDriverStmtsOpened(c, 2)
	c.Assert(db.Close(), IsNil)
	c.Check(db.stmts.len(), Equals, 0)
	s.checkDriverStmtsClosed(c, 2)
}

func (s *CacheSuite) TestPreparedStatementsInTX(c *C) {
	db := s.openDB(c)
	defer db.Close()
	stmt := NewCompiler().MustPrepare(`SELECT 'test'`, nil)

	// Prepare and cache the statement outside of the transaction.
	err := db.Query(nil, stmt, nil).Run()
	c.Assert(err, IsNil)

	tx, err := db.Begin(nil, nil)
	c.Assert(err, IsNil)
	var out string
	err = tx.Query(nil, stmt, nil).Get(&out)
	c.Assert(err, IsNil)
	c.Check(out, Equals, "test")
	c.Assert(tx.Commit(), IsNil)
	s.checkQueriesRunOnStmt(c, 2)
	s.checkQueriesRunOnDB(c, 0)

	// A statement that is not cached runs directly on the transaction.
	tx, err = db.Begin(nil, nil)
	c.Assert(err, IsNil)
	err = tx.Query(nil, NewCompiler().MustPrepare(`SELECT 'other'`, nil), nil).Get(&out)
	c.Assert(err, IsNil)
	c.Check(out, Equals, "other")
	c.Assert(tx.Rollback(), IsNil)
	s.checkQueriesRunOnDB(c, 1)
	c.Check(db.stmts.len(), Equals, 1)
}

func (s *CacheSuite) openDB(c *C, opts ...DBOption) *DB {
	db, err := sql.Open("sqlite3_stmtChecked", "file:"+c.TestName()+"?cache=shared&mode=memory&"+TestNameTag+"="+c.TestName())
	c.Assert(err, IsNil)
	return NewDB(db, opts...)
}

func (s *CacheSuite) checkDriverStmtsAllClosed(c *C) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(len(openedStmts[c.TestName()]), Equals, len(closedStmts[c.TestName()]))
}

func (s *CacheSuite) checkDriverStmtsOpened(c *C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(openedStmts[c.TestName()], HasLen, n)
}

func (s *CacheSuite) checkDriverStmtsClosed(c *C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(closedStmts[c.TestName()], HasLen, n)
}

func (s *CacheSuite) checkQueriesRunOnDB(c *C, n int) {
	queriesRunMutex.RLock()
	defer queriesRunMutex.RUnlock()
	c.Check(dbQueriesRun[c.TestName()], Equals, n)
}

func (s *CacheSuite) checkQueriesRunOnStmt(c *C, n int) {
	queriesRunMutex.RLock()
	defer queriesRunMutex.RUnlock()
	c.Check(stmtQueriesRun[c.TestName()], Equals, n)
}
