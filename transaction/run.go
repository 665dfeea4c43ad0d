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
// running functions under transactions

import (
	"context"
	"fmt"

	"lab.nexedi.com/kirr/go123/xerr"

	"lab.nexedi.com/kirr/jtx/internal/log"
)

// Run runs fn under a transaction requested for mode and scope.
//
// If the request created a new transaction, Run owns it: it is committed
// when fn succeeds and rolled back when fn fails or panics. If the request
// joined a transaction already running in ctx, its owner completes it;
// Run only marks it rollback-only when fn fails or panics.
//
// fn receives the context carrying the transaction stack, so nested Run
// calls with fn's context see the transaction.
func (m *Manager) Run(ctx context.Context, mode Mode, scope interface{}, fn func(ctx context.Context, tx *Transaction) error) (err error) {
	prev := m.Transaction(ctx)
	tx, ctx, err := m.RequestTransaction(ctx, mode, scope)
	if err != nil {
		return err
	}
	owner := tx != prev

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := fmt.Errorf("panic: %v", r)
		if owner {
			if e := tx.Rollback(ctx); e != nil {
				log.Errorf(ctx, "%s: rollback after panic: %s", tx, e)
			}
		} else {
			tx.SetRollbackOnly(cause)
		}
		panic(r)
	}()

	err = fn(ctx, tx)

	if !owner {
		if err != nil {
			if e := tx.SetRollbackOnly(err); e != nil {
				log.Warningf(ctx, "%s: %s", tx, e)
			}
		}
		return err
	}

	if err != nil {
		return xerr.Merge(err, tx.Rollback(ctx))
	}

	err = tx.Commit(ctx)
	if err != nil && !tx.IsCompleted() && tx.Status() != Unknown {
		// failed commit leaves tx rollback-only with resources still bound
		err = xerr.Merge(err, tx.Rollback(ctx))
	}
	return err
}
