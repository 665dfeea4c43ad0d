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
// transaction stacks carried by contexts

import (
	"context"
)

// stack is the ordered list of transactions of one execution flow.
//
// The last element is the current transaction. A stack is reachable only
// through the context chain it was attached to and is not safe for
// concurrent use: it is confined to its execution flow the same way a
// thread-local would be.
type stack struct {
	txv []*Transaction
}

// stackKey is the context key of a manager's stack.
//
// Keys are per manager so that several managers can share one context
// without seeing each other's transactions.
type stackKey struct {
	m *Manager
}

// stackOf returns the stack of m attached to ctx, or nil.
func (m *Manager) stackOf(ctx context.Context) *stack {
	s, _ := ctx.Value(stackKey{m}).(*stack)
	return s
}

// Attach returns ctx with a transaction stack of m attached.
//
// If ctx already carries one it is returned unchanged. Transactions
// requested with contexts derived from the result share that stack.
// RequestTransaction attaches automatically; Attach is useful to start
// an execution flow explicitly, e.g. at the top of a request handler.
func (m *Manager) Attach(ctx context.Context) context.Context {
	ctx, _ = m.attach(ctx)
	return ctx
}

func (m *Manager) attach(ctx context.Context) (context.Context, *stack) {
	s := m.stackOf(ctx)
	if s == nil {
		s = &stack{}
		ctx = context.WithValue(ctx, stackKey{m}, s)
	}
	return ctx, s
}

// top returns the current transaction, or nil.
func (s *stack) top() *Transaction {
	if s == nil || len(s.txv) == 0 {
		return nil
	}
	return s.txv[len(s.txv)-1]
}

func (s *stack) push(tx *Transaction) {
	s.txv = append(s.txv, tx)
}

// remove removes tx from the stack.
//
// An emptied stack drops its storage, so a long-lived context does not
// keep the last transactions reachable.
func (s *stack) remove(tx *Transaction) bool {
	for i := len(s.txv) - 1; i >= 0; i-- {
		if s.txv[i] != tx {
			continue
		}

		copy(s.txv[i:], s.txv[i+1:])
		s.txv[len(s.txv)-1] = nil
		s.txv = s.txv[:len(s.txv)-1]
		if len(s.txv) == 0 {
			s.txv = nil
		}
		return true
	}
	return false
}

func (s *stack) contains(tx *Transaction) bool {
	if s == nil {
		return false
	}
	for _, t := range s.txv {
		if t == tx {
			return true
		}
	}
	return false
}

func (s *stack) len() int {
	if s == nil {
		return 0
	}
	return len(s.txv)
}

// countStatus returns how many transactions on the stack have status st.
func (s *stack) countStatus(st Status) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.txv {
		if t.Status() == st {
			n++
		}
	}
	return n
}
