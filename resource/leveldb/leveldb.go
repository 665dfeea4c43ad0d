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

// Package leveldb provides LevelDB databases as transactional resources.
//
// An active session reads from a snapshot taken at begin, overlaid with
// its own writes, and accumulates writes in a batch applied atomically at
// commit. A pass-through session reads and writes the database directly.
//
// URLs:
//
//	leveldb:///path/to/db[?sync=1]
//
// ?sync=1 makes commits fsync the database log.
package leveldb

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"lab.nexedi.com/kirr/jtx/internal/log"
	"lab.nexedi.com/kirr/jtx/resource"
	"lab.nexedi.com/kirr/jtx/transaction"
)

// Manager provides sessions to a LevelDB database as transactional resources.
type Manager struct {
	typ transaction.ResourceType
	db  *leveldb.DB
	wo  *opt.WriteOptions

	mu     sync.Mutex
	closed bool
}

var _ transaction.ResourceManager = (*Manager)(nil)

// NewManager returns resource manager for db providing resources of type typ.
//
// Closing the manager closes db.
func NewManager(typ transaction.ResourceType, db *leveldb.DB, fsync bool) *Manager {
	return &Manager{typ: typ, db: db, wo: &opt.WriteOptions{Sync: fsync}}
}

func (m *Manager) ResourceType() transaction.ResourceType { return m.typ }
func (m *Manager) DB() *leveldb.DB                        { return m.db }

// BeginTransaction returns *Session.
func (m *Manager) BeginTransaction(ctx context.Context, mode transaction.Mode, active bool) (transaction.Resource, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, resource.ErrClosed
	}

	s := &Session{m: m, readOnly: mode.ReadOnly()}
	if active {
		snapshot, err := m.db.GetSnapshot()
		if err != nil {
			return nil, err
		}
		s.snapshot = snapshot
		s.batch = new(leveldb.Batch)
		s.pending = make(map[string][]byte)
	}
	return s, nil
}

func (m *Manager) CommitTransaction(ctx context.Context, r transaction.Resource) error {
	s := r.(*Session)
	if err := s.finish(); err != nil {
		return err
	}
	if s.batch == nil || s.batch.Len() == 0 {
		return nil
	}
	err := m.db.Write(s.batch, m.wo)
	if err != nil {
		s.commitFailed = true
	}
	return err
}

// RollbackTransaction discards writes of s.
//
// Rolling back a session whose commit failed is a no-op: nothing of the
// batch reached the database.
func (m *Manager) RollbackTransaction(ctx context.Context, r transaction.Resource) error {
	s := r.(*Session)
	if s.batch != nil {
		s.batch.Reset()
	}
	if s.commitFailed {
		return nil
	}
	return s.finish()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()

	if already {
		return nil
	}
	return m.db.Close()
}

// Session is the resource of leveldb transaction.
type Session struct {
	m        *Manager
	readOnly bool
	done     bool

	commitFailed bool

	// active sessions only
	snapshot *leveldb.Snapshot
	batch    *leveldb.Batch
	pending  map[string][]byte // writes in batch for read-your-writes; nil value = deleted
}

var _ resource.KV = (*Session)(nil)

func (s *Session) finish() error {
	if s.done {
		return resource.ErrDone
	}
	s.done = true
	s.pending = nil
	if s.snapshot != nil {
		s.snapshot.Release()
	}
	return nil
}

func (s *Session) Get(key []byte) ([]byte, bool, error) {
	if s.done {
		return nil, false, resource.ErrDone
	}

	var value []byte
	var err error
	if s.snapshot != nil {
		if v, ok := s.pending[string(key)]; ok {
			return v, v != nil, nil
		}
		value, err = s.snapshot.Get(key, nil)
	} else {
		value, err = s.m.db.Get(key, nil)
	}

	switch err {
	case nil:
		return value, true, nil
	case leveldb.ErrNotFound:
		return nil, false, nil
	}
	return nil, false, err
}

func (s *Session) Put(key, value []byte) error {
	if err := s.checkWrite(); err != nil {
		return err
	}
	if s.batch == nil {
		return s.m.db.Put(key, value, s.m.wo)
	}

	v := make([]byte, len(value)) // never nil
	copy(v, value)
	s.batch.Put(key, v)
	s.pending[string(key)] = v
	return nil
}

func (s *Session) Delete(key []byte) error {
	if err := s.checkWrite(); err != nil {
		return err
	}
	if s.batch == nil {
		return s.m.db.Delete(key, s.m.wo)
	}

	s.batch.Delete(key)
	s.pending[string(key)] = nil
	return nil
}

func (s *Session) checkWrite() error {
	switch {
	case s.done:
		return resource.ErrDone
	case s.readOnly:
		return resource.ErrReadOnly
	}
	return nil
}

// ---- open by URL ----

// OpenFile opens, or creates, leveldb database at path.
//
// A corrupted database is recovered.
func OpenFile(ctx context.Context, path string) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if lderrors.IsCorrupted(err) {
		log.Warningf(ctx, "leveldb %s: corruption detected: %s", path, err)
		db, err = leveldb.RecoverFile(path, nil)
		if err == nil {
			log.Warningf(ctx, "leveldb %s: recovered", path)
		}
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func openURL(ctx context.Context, u *url.URL, typ transaction.ResourceType) (transaction.ResourceManager, error) {
	path := u.Host + u.Path
	if path == "" {
		return nil, errors.New("leveldb: database path not specified")
	}
	fsync, err := resource.Flag(u, "sync")
	if err != nil {
		return nil, err
	}

	db, err := OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewManager(typ, db, fsync), nil
}

func init() {
	resource.RegisterOpener("leveldb", openURL)
}
