// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package exql

func (db *DB) NumCachedStatements() int {
	if db.stmts == nil {
		return 0
	}
	return db.stmts.len()
}
