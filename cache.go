// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package exql

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStatementCacheSize is the number of driver prepared statements a
// [DB] keeps open unless configured otherwise.
const DefaultStatementCacheSize = 64

// statementCache holds the driver prepared statements of one DB, keyed by
// rendered SQL. The rendered SQL of a template changes with the length of
// the collections bound to it, so the cache is bounded. Evicted statements
// are closed.
//
// Statements are only evicted while the mutex is held for writing. A
// statement is used while holding the mutex for reading so it cannot be
// closed under the caller.
type statementCache struct {
	stmts *lru.Cache[string, *sql.Stmt]
	mutex sync.RWMutex
}

func newStatementCache(size int) (*statementCache, error) {
	stmts, err := lru.NewWithEvict(size, func(_ string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	return &statementCache{stmts: stmts}, nil
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// use calls f with the prepared statement for query. The statement is
// prepared on ps and cached if it is not cached already.
func (sc *statementCache) use(ctx context.Context, ps prepareSubstrate, query string, f func(*sql.Stmt) error) error {
	if ok, err := sc.useCached(query, f); ok {
		return err
	}

	sqlstmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := sc.stmts.Get(query); ok {
		sqlstmt.Close()
		sqlstmt = alt
	} else {
		sc.stmts.Add(query, sqlstmt)
	}
	return f(sqlstmt)
}

// useCached calls f with the cached statement for query. It returns false
// without calling f if there is none.
func (sc *statementCache) useCached(query string, f func(*sql.Stmt) error) (bool, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	sqlstmt, ok := sc.stmts.Get(query)
	if !ok {
		return false, nil
	}
	return true, f(sqlstmt)
}

// len returns the number of cached statements.
func (sc *statementCache) len() int {
	return sc.stmts.Len()
}

// purge closes and removes all cached statements.
func (sc *statementCache) purge() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.stmts.Purge()
}
