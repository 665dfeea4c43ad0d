// Copyright (C) 2026  Nexedi SA and Contributors.
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.
// See https://www.nexedi.com/licensing for rationale and options.

package jtxtools
// jtx sql - run SQL statements

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/jtx/resource/sqldb"
	"lab.nexedi.com/kirr/jtx/transaction"
)

// SQL runs statements of stmtv on database resource provided by rm, under one transaction.
//
// Rows returned by queries are printed tab-separated; for other statements
// the number of affected rows is printed.
func SQL(ctx context.Context, w io.Writer, rm transaction.ResourceManager, s *TxSetup, stmtv []string) error {
	return s.run(ctx, rm, func(ctx context.Context, r transaction.Resource) error {
		sess, ok := r.(*sqldb.Session)
		if !ok {
			return fmt.Errorf("resource %T is not SQL database", r)
		}
		for _, stmt := range stmtv {
			if err := runStmt(ctx, w, sess, stmt); err != nil {
				return fmt.Errorf("%q: %s", stmt, err)
			}
		}
		return nil
	})
}

// isQuery reports whether stmt returns rows.
func isQuery(stmt string) bool {
	word := strings.ToUpper(strings.TrimSpace(stmt))
	if i := strings.IndexAny(word, " \t\n("); i >= 0 {
		word = word[:i]
	}
	switch word {
	case "SELECT", "WITH", "PRAGMA", "SHOW", "EXPLAIN", "DESCRIBE", "VALUES":
		return true
	}
	return false
}

func runStmt(ctx context.Context, w io.Writer, sess *sqldb.Session, stmt string) error {
	if !isQuery(stmt) {
		res, err := sess.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ok, %d row(s) affected\n", n)
		return nil
	}

	rows, err := sess.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	colv, err := rows.Columns()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.Join(colv, "\t"))

	valv := make([]sql.NullString, len(colv))
	ptrv := make([]interface{}, len(colv))
	for i := range valv {
		ptrv[i] = &valv[i]
	}
	outv := make([]string, len(colv))
	for rows.Next() {
		if err := rows.Scan(ptrv...); err != nil {
			return err
		}
		for i, v := range valv {
			outv[i] = "NULL"
			if v.Valid {
				outv[i] = v.String
			}
		}
		fmt.Fprintln(w, strings.Join(outv, "\t"))
	}
	return rows.Err()
}

// ----------------------------------------

const sqlSummary = "run SQL statements under one transaction"

func sqlUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: jtx sql [OPTIONS] <resource> <statement>...
Run SQL statements on a database, all under one transaction.

<resource> is an URL (see 'jtx help resources') of an SQL database.

Options:

	-h --help       show this help

and transaction mode options (see 'jtx help mode').
`)
}

func sqlMain(argv []string) {
	var txf txFlags
	flags := flag.FlagSet{Usage: func() { sqlUsage(os.Stderr) }}
	flags.Init("", flag.ExitOnError)
	txf.register(&flags, false)
	flags.Parse(argv[1:])

	argv = flags.Args()
	if len(argv) < 2 {
		flags.Usage()
		prog.Exit(2)
	}

	err := withResource(&txf, argv[0], func(ctx context.Context, rm transaction.ResourceManager, s *TxSetup) error {
		return SQL(ctx, os.Stdout, rm, s, argv[1:])
	})
	if err != nil {
		fatal(err)
	}
}
