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

// Package xtesting provides infrastructure for testing code built on package transaction.
package xtesting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lab.nexedi.com/kirr/jtx/transaction"
)

// FatalIf returns function that fails the test if passed error is not nil.
//
//	X := xtesting.FatalIf(t)
//	tx, ctx, err := m.RequestTransaction(ctx, mode, nil); X(err)
func FatalIf(t testing.TB) func(error) {
	return func(err error) {
		if err != nil {
			t.Helper()
			t.Fatal(err)
		}
	}
}

// Resource is the resource handle given out by ResourceManager.
type Resource struct {
	Type   transaction.ResourceType
	Seq    int  // 1, 2, ... in order of BeginTransaction calls
	Mode   transaction.Mode
	Active bool // whether physical transaction was requested

	Committed    bool
	CommitFailed bool
	RolledBack   bool
	Closed       bool
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s%d", r.Type, r.Seq)
}

// ResourceManager is transaction.ResourceManager that records what it is asked to do.
//
// Failures can be injected through the Fail* fields; they are read on
// every call, so tests may change them in between calls. A failing
// RollbackTransaction still closes the resource, as the contract requires.
type ResourceManager struct {
	Type transaction.ResourceType

	FailBegin    error
	FailCommit   error
	FailRollback error
	FailClose    error

	// FailedCommitReleases makes a failed commit release the resource, as
	// databases do when COMMIT fails. Rolling such resource back is a no-op.
	FailedCommitReleases bool

	mu        sync.Mutex
	events    []string
	resources []*Resource
	closed    bool
}

var _ transaction.ResourceManager = (*ResourceManager)(nil)

// NewResourceManager returns new recording resource manager for typ.
func NewResourceManager(typ transaction.ResourceType) *ResourceManager {
	return &ResourceManager{Type: typ}
}

func (rm *ResourceManager) ResourceType() transaction.ResourceType {
	return rm.Type
}

func (rm *ResourceManager) BeginTransaction(ctx context.Context, mode transaction.Mode, active bool) (transaction.Resource, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := &Resource{Type: rm.Type, Seq: len(rm.resources) + 1, Mode: mode, Active: active}
	if rm.FailBegin != nil {
		rm.logf("begin %s: %s", r, rm.FailBegin)
		return nil, rm.FailBegin
	}

	rm.resources = append(rm.resources, r)
	rm.logf("begin %s active=%v", r, active)
	return r, nil
}

func (rm *ResourceManager) CommitTransaction(ctx context.Context, res transaction.Resource) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := res.(*Resource)
	if rm.FailCommit != nil {
		r.CommitFailed = true
		if rm.FailedCommitReleases {
			r.Closed = true
		}
		rm.logf("commit %s: %s", r, rm.FailCommit)
		return rm.FailCommit
	}

	r.Committed = true
	r.Closed = true
	rm.logf("commit %s", r)
	return nil
}

func (rm *ResourceManager) RollbackTransaction(ctx context.Context, res transaction.Resource) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	r := res.(*Resource)
	if r.CommitFailed && r.Closed {
		rm.logf("rollback %s: already released", r)
		return nil
	}

	r.Closed = true
	if rm.FailRollback != nil {
		rm.logf("rollback %s: %s", r, rm.FailRollback)
		return rm.FailRollback
	}

	r.RolledBack = true
	rm.logf("rollback %s", r)
	return nil
}

func (rm *ResourceManager) Close() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.closed = true
	if rm.FailClose != nil {
		rm.logf("close: %s", rm.FailClose)
		return rm.FailClose
	}
	rm.logf("close")
	return nil
}

// must be called with .mu held.
func (rm *ResourceManager) logf(format string, argv ...interface{}) {
	rm.events = append(rm.events, fmt.Sprintf(format, argv...))
}

// Events returns log of calls made to rm, e.g.
//
//	["begin conn1 active=true", "commit conn1", "close"]
func (rm *ResourceManager) Events() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return append([]string(nil), rm.events...)
}

// Resources returns all resources begun by rm.
func (rm *ResourceManager) Resources() []*Resource {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return append([]*Resource(nil), rm.resources...)
}

// Closed reports whether Close was called.
func (rm *ResourceManager) Closed() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.closed
}

// Clock is a manually advanced clock for Options.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns clock set to now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
