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

package transaction_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"lab.nexedi.com/kirr/jtx/internal/xtesting"
	"lab.nexedi.com/kirr/jtx/transaction"
)

func TestRun(t *testing.T) {
	m, rmv := newManager(t, nil, conn)
	rm := rmv[0]

	// owner commits on success
	err := m.Run(bg, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
		_, err := tx.RequestResource(ctx, conn)
		return err
	})
	require.NoError(t, err)
	checkEvents(t, rm, "begin conn1 active=true", "commit conn1")

	// owner rolls back on error
	errFn := errors.New("not enough money")
	err = m.Run(bg, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
		if _, err := tx.RequestResource(ctx, conn); err != nil {
			return err
		}
		return errFn
	})
	require.Equal(t, errFn, err)
	checkEvents(t, rm,
		"begin conn1 active=true", "commit conn1",
		"begin conn2 active=true", "rollback conn2")
	require.Equal(t, 0, m.Live())
}

func TestRunJoined(t *testing.T) {
	X := xtesting.FatalIf(t)
	m, rmv := newManager(t, nil, conn)

	outer, ctx, err := m.RequestTransaction(bg, required, nil); X(err)

	// joined Run does not complete the transaction
	err = m.Run(ctx, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
		require.True(t, tx == outer)
		_, err := tx.RequestResource(ctx, conn)
		return err
	})
	X(err)
	require.True(t, outer.IsActive())
	require.Equal(t, 1, outer.ResourceCount())

	// but marks it rollback-only on failure
	errFn := errors.New("constraint violated")
	err = m.Run(ctx, required.Mandatory(), nil, func(ctx context.Context, tx *transaction.Transaction) error {
		return errFn
	})
	require.Equal(t, errFn, err)
	require.True(t, outer.IsRollbackOnly())
	require.Equal(t, errFn, outer.RollbackCause())

	err = outer.Commit(ctx)
	require.True(t, errors.Is(err, errFn), "%v", err)
	checkEvents(t, rmv[0], "begin conn1 active=true", "rollback conn1")

	// nested owner inside of outer
	outer, ctx, err = m.RequestTransaction(bg, required, nil); X(err)
	err = m.Run(ctx, required.RequiresNew(), nil, func(ctx context.Context, tx *transaction.Transaction) error {
		require.True(t, tx != outer)
		require.Equal(t, 2, m.TotalTransactions(ctx))
		return nil
	})
	X(err)
	require.True(t, m.Transaction(ctx) == outer)
	X(outer.Rollback(ctx))
}

func TestRunPanic(t *testing.T) {
	X := xtesting.FatalIf(t)
	m, rmv := newManager(t, nil, conn)

	func() {
		defer func() {
			r := recover()
			require.Equal(t, "boom", r)
		}()
		m.Run(bg, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
			_, err := tx.RequestResource(ctx, conn); X(err)
			panic("boom")
		})
	}()
	checkEvents(t, rmv[0], "begin conn1 active=true", "rollback conn1")
	require.Equal(t, 0, m.Live())

	// joined: marked rollback-only, panic propagates
	outer, ctx, err := m.RequestTransaction(bg, required, nil); X(err)
	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		m.Run(ctx, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
			panic("boom")
		})
	}()
	require.True(t, outer.IsRollbackOnly())
	require.Error(t, outer.Commit(ctx))
	require.True(t, outer.IsRolledBack())
}

func TestRunCommitFailure(t *testing.T) {
	var testv = []struct {
		releases bool   // whether failed commit releases the resource
		rollback string // event of rolling the failed resource back
	}{
		{false, "rollback a1"},
		{true, "rollback a1: already released"},
	}

	for _, tt := range testv {
		m, rmv := newManager(t, nil, "a", "b")
		rmv[0].FailCommit = errors.New("a: lock timeout")
		rmv[0].FailedCommitReleases = tt.releases

		var txRun *transaction.Transaction
		err := m.Run(bg, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
			txRun = tx
			for _, typ := range []transaction.ResourceType{"a", "b"} {
				if _, err := tx.RequestResource(ctx, typ); err != nil {
					return err
				}
			}
			return nil
		})
		require.True(t, transaction.IsKind(err, transaction.ResourceError), "%v", err)
		require.Contains(t, err.Error(), "a: lock timeout")
		require.NotContains(t, err.Error(), "roll back")

		// failed resource is rolled back and nothing leaks
		checkEvents(t, rmv[0], "begin a1 active=true", "commit a1: a: lock timeout", tt.rollback)
		checkEvents(t, rmv[1], "begin b1 active=true", "commit b1")
		require.Equal(t, transaction.RolledBack, txRun.Status())
		require.Equal(t, 0, txRun.ResourceCount())
		require.True(t, rmv[0].Resources()[0].Closed)
		require.Equal(t, 0, m.Live())
	}
}
