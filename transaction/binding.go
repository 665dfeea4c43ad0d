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
// resource bindings

import (
	"context"

	"lab.nexedi.com/kirr/go123/xerr"
)

// binding pairs a live resource with the manager that produced it.
//
// A binding belongs to exactly one transaction.
type binding struct {
	tx       *Transaction
	rm       ResourceManager
	typ      ResourceType
	resource Resource
}

func (b *binding) commit(ctx context.Context) (err error) {
	defer xerr.Contextf(&err, "commit %s", b.typ)
	return b.rm.CommitTransaction(ctx, b.resource)
}

func (b *binding) rollback(ctx context.Context) (err error) {
	defer xerr.Contextf(&err, "rollback %s", b.typ)
	return b.rm.RollbackTransaction(ctx, b.resource)
}

// lookup returns binding of resource type typ, or nil.
func (t *Transaction) lookup(typ ResourceType) *binding {
	for _, b := range t.bindings {
		if b.typ == typ {
			return b
		}
	}
	return nil
}
