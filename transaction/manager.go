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
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lab.nexedi.com/kirr/go123/xerr"

	"lab.nexedi.com/kirr/jtx/internal/log"
)

// UnlimitedResources is the Options.MaxResourcesPerTransaction value
// meaning transactions may bind any number of resources. Any value ≤ 0
// means the same.
const UnlimitedResources = -1

// Options describes Manager configuration.
//
// Options are fixed when the manager is created.
type Options struct {
	// MaxResourcesPerTransaction limits how many resources one transaction
	// may bind. ≤ 0 means unlimited.
	MaxResourcesPerTransaction int

	// ValidateExistingTransaction makes joining a transaction check that
	// the requested isolation and read-only flag are compatible with it.
	ValidateExistingTransaction bool

	// IgnoreScope makes scopes have no effect on transaction reuse.
	IgnoreScope bool

	// SingleResourceManager allows only one resource manager to be registered.
	SingleResourceManager bool

	// Clock, if set, is used instead of time.Now to compute and check deadlines.
	Clock func() time.Time
}

// Manager is the transaction manager.
//
// It keeps the registry of resource managers and decides, according to
// propagation rules, whether a transaction request joins the current
// transaction of the caller's context or starts a new one.
//
// Manager is safe for concurrent use. Transactions it creates are not.
type Manager struct {
	// 64-bit atomics go first for alignment on 32-bit platforms.
	live  counter // transactions created and not yet deregistered
	txSeq uint64  // last transaction id; atomic

	opt Options

	mu  sync.RWMutex
	rmm map[ResourceType]ResourceManager
}

// counter is an atomically updated counter.
type counter struct {
	n int64
}

func (c *counter) inc()      { atomic.AddInt64(&c.n, +1) }
func (c *counter) dec()      { atomic.AddInt64(&c.n, -1) }
func (c *counter) load() int { return int(atomic.LoadInt64(&c.n)) }

// NewManager creates new transaction manager.
//
// opt can be nil, which means default options.
func NewManager(opt *Options) *Manager {
	m := &Manager{rmm: make(map[ResourceType]ResourceManager)}
	if opt != nil {
		m.opt = *opt
	}
	return m
}

// Options returns options the manager was created with.
func (m *Manager) Options() Options {
	return m.opt
}

func (m *Manager) now() time.Time {
	if m.opt.Clock != nil {
		return m.opt.Clock()
	}
	return time.Now()
}

func (m *Manager) nextID() uint64 {
	return atomic.AddUint64(&m.txSeq, 1)
}

// ---- resource managers ----

// RegisterResourceManager registers rm to provide resources of rm.ResourceType().
//
// It is an error to register two managers for the same type, or a second
// manager if the manager was configured with SingleResourceManager.
func (m *Manager) RegisterResourceManager(rm ResourceManager) error {
	const op = "register resource manager"
	typ := rm.ResourceType()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opt.SingleResourceManager && len(m.rmm) != 0 {
		return configErrorf(op, "%s: manager allows only one resource manager", typ)
	}
	if _, already := m.rmm[typ]; already {
		return configErrorf(op, "%s: resource manager already registered", typ)
	}

	m.rmm[typ] = rm
	return nil
}

// ResourceManager returns resource manager registered for typ, or nil.
func (m *Manager) ResourceManager(typ ResourceType) ResourceManager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rmm[typ]
}

// ResourceTypes returns sorted list of registered resource types.
func (m *Manager) ResourceTypes() []ResourceType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	typv := make([]ResourceType, 0, len(m.rmm))
	for typ := range m.rmm {
		typv = append(typv, typ)
	}
	sort.Slice(typv, func(i, j int) bool { return typv[i] < typv[j] })
	return typv
}

func (m *Manager) lookupResourceManager(op string, typ ResourceType) (ResourceManager, error) {
	rm := m.ResourceManager(typ)
	if rm == nil {
		return nil, newError(ResourceError, op,
			fmt.Sprintf("no resource manager registered for resource type %q", typ), nil)
	}
	return rm, nil
}

// Close closes all registered resource managers and clears the registry.
//
// Every manager is closed even if closing some of them fails; the failures
// are returned together.
func (m *Manager) Close() error {
	m.mu.Lock()
	rmm := m.rmm
	m.rmm = make(map[ResourceType]ResourceManager)
	m.mu.Unlock()

	typv := make([]ResourceType, 0, len(rmm))
	for typ := range rmm {
		typv = append(typv, typ)
	}
	sort.Slice(typv, func(i, j int) bool { return typv[i] < typv[j] })

	ctx := context.Background()
	var errv xerr.Errorv
	for _, typ := range typv {
		err := rmm[typ].Close()
		if err != nil {
			log.Warningf(ctx, "transaction: close %s: %s", typ, err)
			errv.Appendf("close %s: %s", typ, err)
		}
	}
	return errv.Err()
}

// ---- introspection ----

// Transaction returns the current transaction of ctx, or nil.
func (m *Manager) Transaction(ctx context.Context) *Transaction {
	return m.stackOf(ctx).top()
}

// TotalTransactions returns number of transactions on the stack of ctx.
func (m *Manager) TotalTransactions(ctx context.Context) int {
	return m.stackOf(ctx).len()
}

// TotalActiveTransactions returns number of active transactions on the stack of ctx.
func (m *Manager) TotalActiveTransactions(ctx context.Context) int {
	return m.stackOf(ctx).countStatus(Active)
}

// TotalTransactionsWithStatus returns number of transactions on the stack of ctx with status st.
func (m *Manager) TotalTransactionsWithStatus(ctx context.Context, st Status) int {
	return m.stackOf(ctx).countStatus(st)
}

// IsAssociated reports whether tx is on the stack of ctx.
func (m *Manager) IsAssociated(ctx context.Context, tx *Transaction) bool {
	return m.stackOf(ctx).contains(tx)
}

// Live returns number of transactions created by m and not yet completed,
// over all execution flows.
func (m *Manager) Live() int {
	return m.live.load()
}

// ---- propagation ----

// RequestTransaction returns a transaction for mode.
//
// Depending on mode's propagation and on the current transaction of ctx it
// is either the current transaction itself, or a new transaction pushed on
// top of the stack of ctx. The returned context carries that stack and
// should be used for the work done under the transaction and for nested
// requests.
//
// scope, if not nil, binds the request to the transaction started with the
// same scope: if the current transaction has an equal scope it is returned
// as is, whatever the propagation; if its scope is different and not nil,
// the request is handled as if there were no current transaction. nil
// scope puts no limits. Scopes are compared with ==, or by value if they
// are not comparable.
//
// Propagation rules:
//
//	                none / placeholder       current transaction
//	Required        new                      join
//	Supports        new placeholder          join
//	Mandatory       error                    join
//	RequiresNew     new                      new
//	NotSupported    new placeholder          new placeholder
//	Never           new / same placeholder   error
//
// Joining validates the modes if ValidateExistingTransaction is set.
func (m *Manager) RequestTransaction(ctx context.Context, mode Mode, scope interface{}) (*Transaction, context.Context, error) {
	if err := mode.Validate(); err != nil {
		return nil, ctx, err
	}

	ctx, s := m.attach(ctx)
	cur := s.top()
	if cur != nil && m.scoped(cur.scope, scope) {
		if scopeEqual(cur.scope, scope) {
			log.V(1).Infof(ctx, "reuse %s (same scope)", cur)
			return cur, ctx, nil
		}
		cur = nil
	}

	tx, err := m.propagate(ctx, s, cur, mode, scope)
	if err != nil {
		return nil, ctx, err
	}
	return tx, ctx, nil
}

// scoped reports whether scopes decide about reuse of a transaction
// started with curScope by a request with scope.
func (m *Manager) scoped(curScope, scope interface{}) bool {
	return !m.opt.IgnoreScope && curScope != nil && scope != nil
}

// scopeEqual compares scopes with == falling back to deep equality for
// values that are not comparable.
func scopeEqual(a, b interface{}) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func (m *Manager) propagate(ctx context.Context, s *stack, cur *Transaction, mode Mode, scope interface{}) (*Transaction, error) {
	const op = "request transaction"

	// real is the current transaction, if it is not a placeholder.
	// Status is not enough: a placeholder marked rollback-only is still one.
	var real *Transaction
	if cur != nil && cur.startedActive {
		real = cur
	}

	switch p := mode.propagation; p {
	case PropagationRequired:
		if real == nil {
			return m.begin(ctx, s, mode, scope, true), nil
		}
		return m.join(ctx, real, mode)

	case PropagationSupports:
		if real == nil {
			return m.begin(ctx, s, mode, scope, false), nil
		}
		return m.join(ctx, real, mode)

	case PropagationMandatory:
		if real == nil {
			return nil, propagationErrorf(op, "no existing transaction found for propagation %s", p)
		}
		return m.join(ctx, real, mode)

	case PropagationRequiresNew:
		return m.begin(ctx, s, mode, scope, true), nil

	case PropagationNotSupported:
		return m.begin(ctx, s, mode, scope, false), nil

	case PropagationNever:
		if real != nil {
			return nil, propagationErrorf(op, "existing transaction found for propagation %s", p)
		}
		if cur != nil {
			return cur, nil
		}
		return m.begin(ctx, s, mode, scope, false), nil

	default:
		return nil, configErrorf(op, "invalid propagation %s", p)
	}
}

// begin creates new transaction and pushes it to s.
func (m *Manager) begin(ctx context.Context, s *stack, mode Mode, scope interface{}, active bool) *Transaction {
	tx := newTransaction(m, s, mode, scope, active)
	log.V(1).Infof(ctx, "new %s", tx)
	return tx
}

// join returns cur for a request with mode after validating they are compatible.
func (m *Manager) join(ctx context.Context, cur *Transaction, mode Mode) (*Transaction, error) {
	const op = "join transaction"

	if m.opt.ValidateExistingTransaction {
		curMode := cur.mode
		if mode.isolation != IsolationDefault && mode.isolation != curMode.isolation {
			return nil, propagationErrorf(op,
				"requested isolation %s is incompatible with existing transaction isolation %s",
				mode.isolation, curMode.isolation)
		}
		if !mode.readOnly && curMode.readOnly {
			return nil, propagationErrorf(op,
				"requested read-write transaction, but existing transaction is read-only")
		}
	}

	log.V(1).Infof(ctx, "join %s", cur)
	return cur, nil
}
