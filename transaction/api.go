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

// Package transaction coordinates local transactions across pluggable resources.
//
// It follows the declarative transaction model of Spring: callers
// request a transaction with a Mode describing propagation, isolation,
// read-only flag and timeout, and the Manager either joins the transaction
// already running in the caller's context or starts a new one. Resources -
// database sessions, key/value stores, ... - are provided by ResourceManager
// adapters which know nothing about each other.
//
//
// Overview
//
// A Manager is created once, adapters are registered to it, and then
// transactions are requested:
//
//	m := transaction.NewManager(nil)
//	err := m.RegisterResourceManager(sqldb.NewManager("sql", db))
//	...
//	tx, ctx, err := m.RequestTransaction(ctx, transaction.NewMode().Required().WithReadOnly(false), nil)
//	...
//	r, err := tx.RequestResource(ctx, "sql")	// begins sql transaction on first use
//	...
//	err = tx.Commit(ctx)
//
// The context returned by RequestTransaction carries the transaction stack
// of the current execution flow. Code called with that context sees the
// same stack: a nested RequestTransaction with PropagationRequired returns
// the very same *Transaction, PropagationRequiresNew pushes a new one on
// top, etc. Contrary to Java-style managers there is no relation in between
// transactions and threads or goroutines - the stack lives in the context.
//
// Manager.Run wraps request / commit / rollback around a function.
//
//
// Resources
//
// A transaction holds at most one resource per ResourceType. The first
// RequestResource of a type asks the registered ResourceManager to begin;
// later requests return the same handle. On commit every bound resource is
// committed - failures do not stop the others and are reported together.
// On rollback every bound resource is rolled back and unbound, whatever the
// outcome, so no handle is ever left behind.
//
//
// No-transaction placeholders
//
// Propagations Supports, NotSupported and Never may produce a
// Transaction with status NoTransaction. It gives callers a uniform object
// for the auto-commit case: resources are still requested through it, but
// adapters are told not to start a physical transaction.
package transaction

import (
	"context"
)

// ResourceType identifies a kind of resource, e.g. "sql" or "leveldb".
//
// A ResourceManager is registered for exactly one ResourceType and a
// Transaction binds at most one resource of every type.
type ResourceType string

// Resource is a live resource handle as returned by ResourceManager.BeginTransaction.
//
// Its concrete type is defined by the adapter, e.g. *sqldb.Session.
type Resource interface{}

// ResourceManager is the adapter between the transaction manager and one kind of resource.
//
// A ResourceManager is stateless with respect to transactions: all state of
// a particular transaction lives in the Resource it returned.
type ResourceManager interface {
	// ResourceType returns the type of resources this manager provides.
	ResourceType() ResourceType

	// BeginTransaction opens a resource for a transaction with given mode.
	//
	// active tells whether the transaction owns a physical transaction.
	// If it is false the resource should work in pass-through
	// (auto-commit) mode.
	BeginTransaction(ctx context.Context, mode Mode, active bool) (Resource, error)

	// CommitTransaction commits work done through r and releases it.
	//
	// If commit fails, r stays bound to the transaction and is later given
	// to RollbackTransaction. When the failed commit already released r,
	// as databases do when COMMIT fails, that rollback must succeed as a
	// no-op.
	CommitTransaction(ctx context.Context, r Resource) error

	// RollbackTransaction rolls back work done through r.
	//
	// r must be released even if rollback itself fails.
	RollbackTransaction(ctx context.Context, r Resource) error

	// Close releases the manager itself.
	Close() error
}
