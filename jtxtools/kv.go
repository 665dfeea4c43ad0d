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
// jtx put & jtx get - write and read key/value resources

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/jtx/internal/task"
	"lab.nexedi.com/kirr/jtx/resource"
	"lab.nexedi.com/kirr/jtx/transaction"
)

// Put stores key=value pairs of kvv into resource provided by rm, under one transaction.
func Put(ctx context.Context, w io.Writer, rm transaction.ResourceManager, s *TxSetup, kvv []string) error {
	type kv struct{ k, v string }
	var todo []kv
	for _, item := range kvv {
		i := strings.IndexByte(item, '=')
		if i < 0 {
			return fmt.Errorf("invalid key=value %q", item)
		}
		todo = append(todo, kv{item[:i], item[i+1:]})
	}

	return s.run(ctx, rm, func(ctx context.Context, r transaction.Resource) error {
		store, err := asKV(r)
		if err != nil {
			return err
		}
		for _, item := range todo {
			if err := store.Put([]byte(item.k), []byte(item.v)); err != nil {
				return fmt.Errorf("put %s: %s", item.k, err)
			}
		}
		if s.Rollback {
			fmt.Fprintf(w, "%d key(s) put, rolled back\n", len(todo))
		} else {
			fmt.Fprintf(w, "%d key(s) put\n", len(todo))
		}
		return nil
	})
}

// Get prints values of keyv from resource provided by rm, under one transaction.
//
// Absent keys are printed as "<key> -".
func Get(ctx context.Context, w io.Writer, rm transaction.ResourceManager, s *TxSetup, keyv []string) error {
	return s.run(ctx, rm, func(ctx context.Context, r transaction.Resource) error {
		store, err := asKV(r)
		if err != nil {
			return err
		}
		for _, key := range keyv {
			value, ok, err := store.Get([]byte(key))
			if err != nil {
				return fmt.Errorf("get %s: %s", key, err)
			}
			if ok {
				fmt.Fprintf(w, "%s=%s\n", key, value)
			} else {
				fmt.Fprintf(w, "%s -\n", key)
			}
		}
		return nil
	})
}

// ----------------------------------------

const putSummary = "store key/value pairs into a resource"

func putUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: jtx put [OPTIONS] <resource> key=value...
Store key/value pairs into a resource, all under one transaction.

<resource> is an URL (see 'jtx help resources') of a key/value resource.

Options:

	-h --help       show this help

and transaction mode options (see 'jtx help mode').
`)
}

func putMain(argv []string) {
	var txf txFlags
	flags := flag.FlagSet{Usage: func() { putUsage(os.Stderr) }}
	flags.Init("", flag.ExitOnError)
	txf.register(&flags, false)
	flags.Parse(argv[1:])

	argv = flags.Args()
	if len(argv) < 2 {
		flags.Usage()
		prog.Exit(2)
	}

	err := withResource(&txf, argv[0], func(ctx context.Context, rm transaction.ResourceManager, s *TxSetup) error {
		return Put(ctx, os.Stdout, rm, s, argv[1:])
	})
	if err != nil {
		fatal(err)
	}
}

const getSummary = "print values of keys from a resource"

func getUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: jtx get [OPTIONS] <resource> key...
Print values of keys from a resource, as key=value lines.

<resource> is an URL (see 'jtx help resources') of a key/value resource.

Options:

	-h --help       show this help

and transaction mode options (see 'jtx help mode'); -readonly is on by default.
`)
}

func getMain(argv []string) {
	var txf txFlags
	flags := flag.FlagSet{Usage: func() { getUsage(os.Stderr) }}
	flags.Init("", flag.ExitOnError)
	txf.register(&flags, true)
	flags.Parse(argv[1:])

	argv = flags.Args()
	if len(argv) < 2 {
		flags.Usage()
		prog.Exit(2)
	}

	err := withResource(&txf, argv[0], func(ctx context.Context, rm transaction.ResourceManager, s *TxSetup) error {
		return Get(ctx, os.Stdout, rm, s, argv[1:])
	})
	if err != nil {
		fatal(err)
	}
}

// withResource opens resource by url and runs f with it under transaction setup from txf.
func withResource(txf *txFlags, url string, f func(context.Context, transaction.ResourceManager, *TxSetup) error) (err error) {
	ctx := context.Background()
	defer task.Running(&ctx, "jtx")(&err)

	s, err := txf.setup()
	if err != nil {
		return err
	}
	rm, err := resource.Open(ctx, url)
	if err != nil {
		return err
	}
	return f(ctx, rm, s)
}
