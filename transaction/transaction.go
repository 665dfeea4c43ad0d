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

package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lab.nexedi.com/kirr/go123/xerr"

	"lab.nexedi.com/kirr/jtx/internal/log"
)

// Transaction is one logical unit of work.
//
// It is created by Manager.RequestTransaction and completed by either
// Commit or Rollback. A Transaction is meant to be used by the execution
// flow that requested it - it can be passed down the call chain freely,
// but not shared in between concurrently running goroutines.
type Transaction struct {
	m     *Manager
	id    uint64
	stack *stack // stack tx was pushed to; nil after deregistration

	mode          Mode
	scope         interface{}
	deadline      time.Time // zero if there is no timeout
	startedActive bool

	// bindings are touched only by the owning execution flow.
	bindings []*binding

	mu            sync.Mutex
	status        Status
	rollbackCause error
}

func newTransaction(m *Manager, s *stack, mode Mode, scope interface{}, active bool) *Transaction {
	t := &Transaction{
		m:             m,
		id:            m.nextID(),
		stack:         s,
		mode:          mode,
		scope:         scope,
		startedActive: active,
	}
	if mode.timed {
		t.deadline = m.now().Add(time.Duration(mode.timeout) * time.Second)
	}
	if active {
		t.status = Active
	} else {
		t.status = NoTransaction
	}

	s.push(t)
	m.live.inc()
	return t
}

func (t *Transaction) String() string {
	return fmt.Sprintf("tx%d (%s, %s)", t.id, t.Status(), t.mode)
}

func (t *Transaction) Manager() *Manager   { return t.m }
func (t *Transaction) Mode() Mode          { return t.mode }
func (t *Transaction) Scope() interface{}  { return t.scope }
func (t *Transaction) StartedActive() bool { return t.startedActive }

// Deadline returns the time after which the transaction is considered timed out.
//
// ok is false if the transaction has no timeout.
func (t *Transaction) Deadline() (deadline time.Time, ok bool) {
	return t.deadline, !t.deadline.IsZero()
}

// ---- status ----

// Status returns current status of the transaction.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transaction) IsActive() bool        { return t.Status() == Active }
func (t *Transaction) IsNoTransaction() bool { return t.Status() == NoTransaction }
func (t *Transaction) IsCommitted() bool     { return t.Status() == Committed }
func (t *Transaction) IsRolledBack() bool    { return t.Status() == RolledBack }
func (t *Transaction) IsRollbackOnly() bool  { return t.Status() == MarkedRollback }

// IsCompleted reports whether the transaction was committed or rolled back.
func (t *Transaction) IsCompleted() bool { return t.Status().completed() }

// RollbackCause returns the error the transaction was marked rollback-only with.
func (t *Transaction) RollbackCause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackCause
}

func (t *Transaction) setStatus(st Status) {
	t.mu.Lock()
	t.status = st
	t.mu.Unlock()
}

// SetRollbackOnly marks the transaction so that its only possible outcome is rollback.
//
// cause, if not nil, is remembered and reported when Commit turns into a
// rollback. Marking is allowed for active transactions, already marked
// ones and no-transaction placeholders; for the latter it means that the
// pass-through resources are rolled back instead of committed.
func (t *Transaction) SetRollbackOnly(cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markRollbackOnly(cause)
}

// must be called with .mu held.
func (t *Transaction) markRollbackOnly(cause error) error {
	switch t.status {
	case Active, MarkedRollback, NoTransaction:
		// ok
	default:
		return lifecycleErrorf("set rollback-only", "no active transaction to mark (status %s)", t.status)
	}

	t.status = MarkedRollback
	if cause != nil {
		t.rollbackCause = cause
	}
	return nil
}

// checkTimeout marks the transaction rollback-only and returns TimeoutError
// if its deadline has passed.
func (t *Transaction) checkTimeout(ctx context.Context, op string) error {
	if t.deadline.IsZero() {
		return nil
	}
	now := t.m.now()
	if !now.After(t.deadline) {
		return nil
	}

	err := newError(TimeoutError, op,
		fmt.Sprintf("transaction timed out %s ago, marked rollback-only", now.Sub(t.deadline)), nil)

	t.mu.Lock()
	t.markRollbackOnly(err) // marking may be refused in final states; the timeout is reported anyway
	t.mu.Unlock()

	log.Warningf(ctx, "%s: %s", t, err)
	return err
}

// ---- resources ----

// RequestResource returns resource of type typ bound to the transaction.
//
// The resource is begun by the corresponding registered ResourceManager
// on first request; subsequent requests return the same handle.
func (t *Transaction) RequestResource(ctx context.Context, typ ResourceType) (Resource, error) {
	const op = "request resource"

	if t.IsCompleted() {
		return nil, lifecycleErrorf(op, "transaction already completed; resources are not available after commit or rollback")
	}
	if err := t.checkTimeout(ctx, op); err != nil {
		return nil, err
	}

	t.mu.Lock()
	st, cause := t.status, t.rollbackCause
	t.mu.Unlock()

	switch st {
	case Active, NoTransaction:
		// ok
	case MarkedRollback:
		return nil, newError(LifecycleError, op, "transaction is marked rollback-only; resources are not available", cause)
	default:
		return nil, lifecycleErrorf(op, "transaction is not active (status %s)", st)
	}

	if b := t.lookup(typ); b != nil {
		return b.resource, nil
	}

	if max := t.m.opt.MaxResourcesPerTransaction; max > 0 && len(t.bindings) >= max {
		return nil, newError(ResourceError, op,
			fmt.Sprintf("transaction already has maximum number of resources attached (%d)", max), nil)
	}

	rm, err := t.m.lookupResourceManager(op, typ)
	if err != nil {
		return nil, err
	}

	active := st == Active
	r, err := rm.BeginTransaction(ctx, t.mode, active)
	if err != nil {
		return nil, newError(ResourceError, op, fmt.Sprintf("begin %s", typ), err)
	}

	t.bindings = append(t.bindings, &binding{tx: t, rm: rm, typ: typ, resource: r})
	log.V(2).Infof(ctx, "%s: begin %s (active: %v)", t, typ, active)
	return r, nil
}

// ResourceCount returns number of resources currently bound to the transaction.
func (t *Transaction) ResourceCount() int {
	return len(t.bindings)
}

// HasResource reports whether a resource of type typ is bound to the transaction.
func (t *Transaction) HasResource(typ ResourceType) bool {
	return t.lookup(typ) != nil
}

// ---- completion ----

// Commit commits all resources bound to the transaction.
//
// If the transaction is marked rollback-only, it is rolled back instead
// and the error carrying the rollback cause is returned.
//
// Commit attempts every resource even if some fail. Successfully committed
// resources are unbound; if any resource failed, the transaction is marked
// rollback-only with the remaining resources still bound, and the caller
// should Rollback it.
func (t *Transaction) Commit(ctx context.Context) error {
	const op = "commit"

	if t.IsCompleted() {
		return lifecycleErrorf(op, "transaction already completed; commit or rollback should be called once")
	}
	if err := t.checkTimeout(ctx, op); err != nil {
		return err
	}
	return t.complete(ctx, true).err(op)
}

// Rollback rolls back all resources bound to the transaction.
//
// Every resource is attempted and unbound whatever the outcome. If some
// resource failed to roll back, the transaction ends with status Unknown
// and the failures are returned.
func (t *Transaction) Rollback(ctx context.Context) error {
	return t.complete(ctx, false).err("rollback")
}

// outcome tags the result of transaction completion.
type outcome int

const (
	outcomeOK       outcome = iota
	outcomeRefused          // completion not allowed in current status
	outcomeFailed           // some resources failed
	outcomeForced           // commit turned into rollback of rollback-only transaction
)

// completion is the result of complete.
type completion struct {
	outcome  outcome
	rollback bool        // whether resources were rolled back
	errv     xerr.Errorv // outcomeFailed: per-resource failures
	err0     error       // outcomeRefused: why; outcomeForced: rollback cause
}

// err translates completion into error returned by Commit / Rollback.
func (c completion) err(op string) error {
	switch c.outcome {
	case outcomeRefused:
		return c.err0

	case outcomeFailed:
		what := "commit"
		if c.rollback {
			what = "roll back"
		}
		return newError(ResourceError, op,
			fmt.Sprintf("%d resource(s) failed to %s", len(c.errv), what), c.errv)

	case outcomeForced:
		return newError(LifecycleError, op, "transaction rolled back because it was marked rollback-only", c.err0)
	}
	return nil
}

// complete is the shared commit / rollback routine.
func (t *Transaction) complete(ctx context.Context, commit bool) completion {
	forced := false

	t.mu.Lock()
	switch st := t.status; st {
	case Active, NoTransaction:
		// ok
	case MarkedRollback:
		if commit {
			commit = false
			forced = true
		}
	case Committed, RolledBack:
		t.mu.Unlock()
		return completion{outcome: outcomeRefused,
			err0: lifecycleErrorf(opName(commit), "transaction already completed; commit or rollback should be called once")}
	default:
		t.mu.Unlock()
		return completion{outcome: outcomeRefused,
			err0: lifecycleErrorf(opName(commit), "no active transaction to %s (status %s)", opName(commit), st)}
	}

	if commit {
		t.status = Committing
	} else {
		t.status = RollingBack
	}
	t.mu.Unlock()

	if commit {
		return t.commitAll(ctx)
	}
	return t.rollbackAll(ctx, forced)
}

func opName(commit bool) string {
	if commit {
		return "commit"
	}
	return "rollback"
}

func (t *Transaction) commitAll(ctx context.Context) completion {
	log.V(1).Infof(ctx, "%s: commit %d resource(s)", t, len(t.bindings))

	var errv xerr.Errorv
	var failed []*binding
	for _, b := range t.bindings {
		err := b.commit(ctx)
		if err != nil {
			errv.Append(err)
			failed = append(failed, b)
		}
	}
	t.bindings = failed

	if len(errv) != 0 {
		t.mu.Lock()
		t.status = MarkedRollback
		t.rollbackCause = errv[len(errv)-1]
		t.mu.Unlock()

		log.Warningf(ctx, "%s: commit failed: %s", t, errv)
		return completion{outcome: outcomeFailed, errv: errv}
	}

	t.deregister()
	t.setStatus(Committed)
	return completion{outcome: outcomeOK}
}

func (t *Transaction) rollbackAll(ctx context.Context, forced bool) completion {
	log.V(1).Infof(ctx, "%s: rollback %d resource(s) (forced: %v)", t, len(t.bindings), forced)

	var errv xerr.Errorv
	for i, b := range t.bindings {
		errv.Appendif(b.rollback(ctx))
		t.bindings[i] = nil
	}
	t.bindings = nil
	t.deregister()

	// terminal status is assigned once, so observers never see RolledBack
	// changing to Unknown afterwards.
	final := RolledBack
	if len(errv) != 0 {
		final = Unknown
	}

	t.mu.Lock()
	t.status = final
	cause := t.rollbackCause
	t.mu.Unlock()

	switch {
	case len(errv) != 0:
		log.Warningf(ctx, "%s: rollback failed: %s", t, errv)
		return completion{outcome: outcomeFailed, rollback: true, errv: errv}

	case forced:
		return completion{outcome: outcomeForced, rollback: true, err0: cause}
	}

	return completion{outcome: outcomeOK, rollback: true}
}

// deregister removes t from its stack. It is a no-op if already done.
func (t *Transaction) deregister() {
	if t.stack == nil {
		return
	}
	t.stack.remove(t)
	t.stack = nil
	t.m.live.dec()
}
