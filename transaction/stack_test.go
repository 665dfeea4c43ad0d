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
	"testing"
)

func TestStack(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	if m.stackOf(ctx) != nil {
		t.Fatal("stack attached to background context")
	}

	ctx = m.Attach(ctx)
	s := m.stackOf(ctx)
	if s == nil {
		t.Fatal("attach: no stack")
	}
	if ctx2 := m.Attach(ctx); m.stackOf(ctx2) != s {
		t.Fatal("attach: stack replaced")
	}

	// stacks of different managers are independent
	m2 := NewManager(nil)
	if m2.stackOf(ctx) != nil {
		t.Fatal("stack visible to another manager")
	}

	tx1 := newTransaction(m, s, Mode{}, nil, true)
	tx2 := newTransaction(m, s, Mode{}, nil, false)
	tx3 := newTransaction(m, s, Mode{}, nil, true)

	if s.top() != tx3 || s.len() != 3 || m.Live() != 3 {
		t.Fatalf("push: top=%v len=%d live=%d", s.top(), s.len(), m.Live())
	}
	if n := s.countStatus(Active); n != 2 {
		t.Fatalf("countStatus(active): %d", n)
	}

	// removal from the middle keeps order
	tx2.deregister()
	tx2.deregister() // no-op
	if !(s.len() == 2 && s.txv[0] == tx1 && s.txv[1] == tx3) || m.Live() != 2 {
		t.Fatalf("remove middle: %v  live=%d", s.txv, m.Live())
	}
	if s.contains(tx2) {
		t.Fatal("removed transaction still on stack")
	}

	tx3.deregister()
	tx1.deregister()
	if s.txv != nil {
		t.Fatalf("emptied stack retains storage: %#v", s.txv)
	}
	if s.top() != nil || m.Live() != 0 {
		t.Fatalf("emptied stack: top=%v live=%d", s.top(), m.Live())
	}
}
