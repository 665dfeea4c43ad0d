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

package leveldb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"golang.org/x/sync/errgroup"

	"lab.nexedi.com/kirr/jtx/internal/xtesting"
	"lab.nexedi.com/kirr/jtx/resource"
	"lab.nexedi.com/kirr/jtx/transaction"
)

var (
	bg       = context.Background()
	required = transaction.Mode{}.Required()
)

func openMem(t *testing.T) (*transaction.Manager, *Manager) {
	t.Helper()
	X := xtesting.FatalIf(t)

	db, err := leveldb.Open(storage.NewMemStorage(), nil); X(err)
	ldb := NewManager("ldb", db, false)
	m := transaction.NewManager(nil)
	X(m.RegisterResourceManager(ldb))
	t.Cleanup(func() { m.Close() })
	return m, ldb
}

func kv(t *testing.T, ctx context.Context, tx *transaction.Transaction) resource.KV {
	t.Helper()
	r, err := tx.RequestResource(ctx, "ldb")
	xtesting.FatalIf(t)(err)
	return r.(resource.KV)
}

// dbGet returns committed value of key, or "<absent>".
func dbGet(t *testing.T, ldb *Manager, key string) string {
	t.Helper()
	v, err := ldb.DB().Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "<absent>"
	}
	xtesting.FatalIf(t)(err)
	return string(v)
}

func TestCommitRollback(t *testing.T) {
	X := xtesting.FatalIf(t)
	m, ldb := openMem(t)
	X(ldb.DB().Put([]byte("a"), []byte("0"), nil))

	tx, ctx, err := m.RequestTransaction(bg, required, nil); X(err)
	s := kv(t, ctx, tx)

	// committed by somebody else after begin: not visible in snapshot
	X(ldb.DB().Put([]byte("z"), []byte("26"), nil))
	_, ok, err := s.Get([]byte("z")); X(err)
	require.False(t, ok)

	X(s.Put([]byte("a"), []byte("1")))
	X(s.Put([]byte("b"), []byte("2")))
	X(s.Delete([]byte("b")))

	v, ok, err := s.Get([]byte("a")); X(err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))
	_, ok, err = s.Get([]byte("b")); X(err)
	require.False(t, ok)
	require.Equal(t, "0", dbGet(t, ldb, "a"))

	X(tx.Commit(ctx))
	require.Equal(t, "1", dbGet(t, ldb, "a"))
	require.Equal(t, "<absent>", dbGet(t, ldb, "b"))

	_, _, err = s.Get([]byte("a"))
	require.Equal(t, resource.ErrDone, err)

	tx, ctx, err = m.RequestTransaction(bg, required, nil); X(err)
	s = kv(t, ctx, tx)
	X(s.Put([]byte("a"), []byte("2")))
	X(s.Delete([]byte("z")))
	X(tx.Rollback(ctx))
	require.Equal(t, "1", dbGet(t, ldb, "a"))
	require.Equal(t, "26", dbGet(t, ldb, "z"))
}

func TestPassThrough(t *testing.T) {
	X := xtesting.FatalIf(t)
	m, ldb := openMem(t)

	tx, ctx, err := m.RequestTransaction(bg, required.NotSupported(), nil); X(err)
	s := kv(t, ctx, tx)
	X(s.Put([]byte("a"), []byte("1")))
	require.Equal(t, "1", dbGet(t, ldb, "a"))

	X(ldb.DB().Put([]byte("b"), []byte("2"), nil))
	v, ok, err := s.Get([]byte("b")); X(err)
	require.True(t, ok)
	require.Equal(t, "2", string(v))

	X(tx.Rollback(ctx))
	require.Equal(t, "1", dbGet(t, ldb, "a"))
}

// failed write of the batch leaves the transaction to be rolled back cleanly.
func TestCommitFailure(t *testing.T) {
	X := xtesting.FatalIf(t)
	m, ldb := openMem(t)

	tx, ctx, err := m.RequestTransaction(bg, required, nil); X(err)
	X(kv(t, ctx, tx).Put([]byte("a"), []byte("1")))
	X(ldb.DB().Close())

	err = tx.Commit(ctx)
	require.True(t, transaction.IsKind(err, transaction.ResourceError), "%v", err)
	require.Contains(t, err.Error(), leveldb.ErrClosed.Error())
	require.Equal(t, transaction.MarkedRollback, tx.Status())
	require.Equal(t, 1, tx.ResourceCount())

	X(tx.Rollback(ctx))
	require.Equal(t, transaction.RolledBack, tx.Status())
	require.Equal(t, 0, tx.ResourceCount())
}

func TestReadOnly(t *testing.T) {
	X := xtesting.FatalIf(t)
	m, _ := openMem(t)

	for _, mode := range []transaction.Mode{required.WithReadOnly(true), transaction.NewMode()} {
		tx, ctx, err := m.RequestTransaction(bg, mode, nil); X(err)
		s := kv(t, ctx, tx)
		require.Equal(t, resource.ErrReadOnly, s.Put([]byte("a"), []byte("1")))
		require.Equal(t, resource.ErrReadOnly, s.Delete([]byte("a")))
		X(tx.Commit(ctx))
	}
}

func TestConcurrent(t *testing.T) {
	m, ldb := openMem(t)

	const N = 32
	wg, ctx := errgroup.WithContext(bg)
	for i := 0; i < N; i++ {
		i := i
		wg.Go(func() error {
			return m.Run(ctx, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
				r, err := tx.RequestResource(ctx, "ldb")
				if err != nil {
					return err
				}
				return r.(resource.KV).Put([]byte(fmt.Sprintf("k%02d", i)), []byte(fmt.Sprint(i)))
			})
		})
	}
	require.NoError(t, wg.Wait())
	require.Equal(t, "17", dbGet(t, ldb, "k17"))

	n := 0
	it := ldb.DB().NewIterator(nil, nil)
	for it.Next() {
		n++
	}
	it.Release()
	require.NoError(t, it.Error())
	require.Equal(t, N, n)
}

func TestOpenURL(t *testing.T) {
	X := xtesting.FatalIf(t)
	path := filepath.Join(t.TempDir(), "db")

	rm, err := resource.Open(bg, "leveldb://"+path+"?sync=1"); X(err)
	ldb := rm.(*Manager)
	require.Equal(t, transaction.ResourceType("leveldb"), ldb.ResourceType())
	require.True(t, ldb.wo.Sync)

	m := transaction.NewManager(nil)
	X(m.RegisterResourceManager(ldb))
	X(m.Run(bg, required, nil, func(ctx context.Context, tx *transaction.Transaction) error {
		r, err := tx.RequestResource(ctx, "leveldb")
		if err != nil {
			return err
		}
		return r.(resource.KV).Put([]byte("k"), []byte("v"))
	}))
	X(m.Close())

	// reopen: data is there
	rm, err = resource.Open(bg, "leveldb://"+path+"?type=idx"); X(err)
	ldb = rm.(*Manager)
	require.Equal(t, transaction.ResourceType("idx"), ldb.ResourceType())
	require.False(t, ldb.wo.Sync)
	require.Equal(t, "v", dbGet(t, ldb, "k"))
	X(ldb.Close())

	_, err = resource.Open(bg, "leveldb://"+path+"?sync=maybe")
	require.Error(t, err)
}
