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
// routines common to several commands

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"lab.nexedi.com/kirr/jtx/internal/task"
	"lab.nexedi.com/kirr/jtx/resource"
	"lab.nexedi.com/kirr/jtx/transaction"
)

// errRollback is returned by transaction body to have the transaction rolled back.
var errRollback = errors.New("rollback requested")

// txFlags are command-line options describing the transaction mode.
type txFlags struct {
	propagation string
	isolation   string
	readOnly    bool
	timeout     int
	rollback    bool
	validate    bool
}

func (f *txFlags) register(flags *flag.FlagSet, readOnly bool) {
	flags.StringVar(&f.propagation, "propagation", "required", "transaction propagation")
	flags.StringVar(&f.isolation, "isolation", "default", "transaction isolation level")
	flags.BoolVar(&f.readOnly, "readonly", readOnly, "run read-only transaction")
	flags.IntVar(&f.timeout, "timeout", transaction.NoTimeout, "transaction timeout in seconds")
	flags.BoolVar(&f.rollback, "rollback", false, "roll back instead of committing")
	flags.BoolVar(&f.validate, "validate", false, "validate modes of joined transactions")
}

// mode returns transaction mode described by the flags.
func (f *txFlags) mode() (transaction.Mode, error) {
	p, err := transaction.ParsePropagation(f.propagation)
	if err != nil {
		return transaction.Mode{}, err
	}
	iso, err := transaction.ParseIsolation(f.isolation)
	if err != nil {
		return transaction.Mode{}, err
	}

	mode := transaction.Mode{}.
		WithPropagation(p).
		WithIsolation(iso).
		WithReadOnly(f.readOnly).
		WithTimeout(f.timeout)
	return mode, mode.Validate()
}

// TxSetup describes the transaction a command runs its work under.
type TxSetup struct {
	Mode     transaction.Mode
	Rollback bool // roll back instead of committing
	Options  transaction.Options
}

func (f *txFlags) setup() (*TxSetup, error) {
	mode, err := f.mode()
	if err != nil {
		return nil, err
	}
	return &TxSetup{
		Mode:     mode,
		Rollback: f.rollback,
		Options:  transaction.Options{ValidateExistingTransaction: f.validate},
	}, nil
}

// run runs fn with resource provided by rm under transaction described by s.
//
// rm is registered to a fresh transaction manager which is closed, and so
// is rm, when run returns.
func (s *TxSetup) run(ctx context.Context, rm transaction.ResourceManager, fn func(ctx context.Context, r transaction.Resource) error) (err error) {
	defer task.Running(&ctx, "tx")(&err)

	m := transaction.NewManager(&s.Options)
	defer func() {
		if e := m.Close(); e != nil && err == nil {
			err = e
		}
	}()

	err = m.RegisterResourceManager(rm)
	if err != nil {
		rm.Close()
		return err
	}

	err = m.Run(ctx, s.Mode, nil, func(ctx context.Context, tx *transaction.Transaction) error {
		r, err := tx.RequestResource(ctx, rm.ResourceType())
		if err != nil {
			return err
		}
		err = fn(ctx, r)
		if err == nil && s.Rollback {
			err = errRollback
		}
		return err
	})

	if errors.Cause(err) == errRollback {
		err = nil
	}
	return err
}

// asKV returns r as key/value resource.
func asKV(r transaction.Resource) (resource.KV, error) {
	kv, ok := r.(resource.KV)
	if !ok {
		return nil, errors.Errorf("resource %T is not key/value", r)
	}
	return kv, nil
}
