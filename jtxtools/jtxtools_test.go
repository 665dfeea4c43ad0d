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

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"

	"lab.nexedi.com/kirr/jtx/internal/xtesting"
	"lab.nexedi.com/kirr/jtx/resource"
	"lab.nexedi.com/kirr/jtx/resource/memkv"
	_ "lab.nexedi.com/kirr/jtx/resource/wks"
	"lab.nexedi.com/kirr/jtx/transaction"
)

var bg = context.Background()

// parseTx parses transaction options from argv like the commands do.
func parseTx(t *testing.T, readOnly bool, argv ...string) *TxSetup {
	t.Helper()
	var txf txFlags
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	txf.register(flags, readOnly)
	if err := flags.Parse(argv); err != nil {
		t.Fatal(err)
	}
	s, err := txf.setup()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTxFlags(t *testing.T) {
	s := parseTx(t, false)
	require.Equal(t, transaction.Mode{}, s.Mode)
	require.False(t, s.Rollback)

	s = parseTx(t, true, "-propagation", "requires_new", "-isolation", "Serializable", "-timeout", "5", "-rollback", "-validate")
	want := transaction.Mode{}.RequiresNew().
		WithIsolation(transaction.IsolationSerializable).
		WithReadOnly(true).
		WithTimeout(5)
	require.Equal(t, want, s.Mode)
	require.True(t, s.Rollback)
	require.True(t, s.Options.ValidateExistingTransaction)

	var testv = [][]string{
		{"-propagation", "sometimes"},
		{"-isolation", "snapshot"},
		{"-timeout", "-2"},
	}
	for _, argv := range testv {
		var txf txFlags
		flags := flag.NewFlagSet("test", flag.ContinueOnError)
		txf.register(flags, false)
		require.NoError(t, flags.Parse(argv))
		_, err := txf.setup()
		require.Error(t, err, "%q", argv)
	}
}

func TestPutGet(t *testing.T) {
	X := xtesting.FatalIf(t)
	store := memkv.Lookup("jtxtools-test")

	open := func() transaction.ResourceManager {
		rm, err := resource.Open(bg, "mem://jtxtools-test?type=kv"); X(err)
		return rm
	}

	out := &bytes.Buffer{}
	X(Put(bg, out, open(), parseTx(t, false), []string{"a=1", "b=", "c=x=y"}))
	require.Equal(t, "3 key(s) put\n", out.String())
	require.Equal(t, []string{"a", "b", "c"}, store.Keys())

	out.Reset()
	X(Put(bg, out, open(), parseTx(t, false, "-rollback"), []string{"d=4"}))
	require.Equal(t, "1 key(s) put, rolled back\n", out.String())
	require.Equal(t, []string{"a", "b", "c"}, store.Keys())

	out.Reset()
	X(Get(bg, out, open(), parseTx(t, true), []string{"a", "b", "c", "d"}))
	want := "a=1\nb=\nc=x=y\nd -\n"
	if diff := pretty.Compare(strings.Split(want, "\n"), strings.Split(out.String(), "\n")); diff != "" {
		t.Fatalf("get:\n%s", diff)
	}

	// writes under read-only transaction are refused
	err := Put(bg, out, open(), parseTx(t, true), []string{"e=5"})
	require.Error(t, err)
	require.Contains(t, err.Error(), resource.ErrReadOnly.Error())

	err = Put(bg, out, open(), parseTx(t, false), []string{"novalue"})
	require.Error(t, err)

	// propagation errors are reported
	err = Get(bg, out, open(), parseTx(t, true, "-propagation", "mandatory"), []string{"a"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no existing transaction found")
}

func TestSQL(t *testing.T) {
	X := xtesting.FatalIf(t)
	url := "sqlite://" + filepath.Join(t.TempDir(), "db.sqlite")

	open := func() transaction.ResourceManager {
		rm, err := resource.Open(bg, url); X(err)
		return rm
	}

	out := &bytes.Buffer{}
	X(SQL(bg, out, open(), parseTx(t, false), []string{
		`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO t VALUES (1, 'one'), (2, NULL)`,
		`SELECT id, name FROM t ORDER BY id`,
	}))
	want := "ok, 0 row(s) affected\n" +
		"ok, 2 row(s) affected\n" +
		"id\tname\n" +
		"1\tone\n" +
		"2\tNULL\n"
	require.Equal(t, want, out.String())

	// -rollback discards changes
	out.Reset()
	X(SQL(bg, out, open(), parseTx(t, false, "-rollback"), []string{`DELETE FROM t`}))
	out.Reset()
	X(SQL(bg, out, open(), parseTx(t, true), []string{`select count(*) as n from t`}))
	require.Equal(t, "n\n2\n", out.String())

	// failing statement rolls back the earlier ones
	err := SQL(bg, out, open(), parseTx(t, false), []string{`DELETE FROM t`, `INSERT INTO nosuch VALUES (1)`})
	require.Error(t, err)
	out.Reset()
	X(SQL(bg, out, open(), parseTx(t, true), []string{`SELECT count(*) AS n FROM t`}))
	require.Equal(t, "n\n2\n", out.String())

	// key/value commands do not work on SQL resources
	err = Get(bg, out, open(), parseTx(t, true), []string{"a"})
	require.Error(t, err)
}

func TestIsQuery(t *testing.T) {
	var testv = []struct {
		stmt string
		ok   bool
	}{
		{"SELECT 1", true},
		{"  select\n*", true},
		{"with x as (select 1) select * from x", true},
		{"VALUES(1)", true},
		{"INSERT INTO t VALUES (1)", false},
		{"delete from t", false},
		{"", false},
	}
	for _, tt := range testv {
		if ok := isQuery(tt.stmt); ok != tt.ok {
			t.Errorf("%q: have %v; want %v", tt.stmt, ok, tt.ok)
		}
	}
}

func TestSchemes(t *testing.T) {
	out := &bytes.Buffer{}
	Schemes(out)
	for _, scheme := range []string{"mem://", "sqlite://", "mysql://", "leveldb://"} {
		require.Contains(t, out.String(), scheme+"\n")
	}
}
