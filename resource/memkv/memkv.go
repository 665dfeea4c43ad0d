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

// Package memkv provides in-memory key/value store participating in transactions.
//
// Stores are process-wide and named; mem://<name> URLs refer to them.
package memkv

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"lab.nexedi.com/kirr/jtx/resource"
	"lab.nexedi.com/kirr/jtx/transaction"
)

// Store is in-memory key/value store safe for concurrent use.
type Store struct {
	name string

	mu   sync.RWMutex
	data map[string][]byte
	rev  map[string]uint64 // key -> number of changes to it; kept after delete
}

// NewStore creates new empty store.
func NewStore(name string) *Store {
	return &Store{name: name, data: make(map[string][]byte), rev: make(map[string]uint64)}
}

func (s *Store) Name() string { return s.name }

// Get returns committed value for key.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	return v, ok
}

// Keys returns sorted list of keys in the store.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyv := make([]string, 0, len(s.data))
	for k := range s.data {
		keyv = append(keyv, k)
	}
	sort.Strings(keyv)
	return keyv
}

// load is like Get but also returns revision of key.
func (s *Store) load(key string) ([]byte, bool, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, s.rev[key]
}

// apply atomically applies changes; nil value means delete.
//
// If a key from seen was changed since its revision was observed, nothing
// is applied and ErrConflict is returned.
func (s *Store) apply(changes map[string][]byte, seen map[string]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, rev := range seen {
		if s.rev[k] != rev {
			return errors.Wrapf(resource.ErrConflict, "%s: key %q", s.name, k)
		}
	}

	for k, v := range changes {
		if v == nil {
			delete(s.data, k)
		} else {
			s.data[k] = v
		}
		s.rev[k]++
	}
	return nil
}

// named stores for mem:// URLs
var (
	storeMu  sync.Mutex
	storeTab = map[string]*Store{}
)

// Lookup returns process-wide store with name, creating it on first use.
func Lookup(name string) *Store {
	storeMu.Lock()
	defer storeMu.Unlock()

	s := storeTab[name]
	if s == nil {
		s = NewStore(name)
		storeTab[name] = s
	}
	return s
}

// Manager provides sessions to a Store as transactional resources.
type Manager struct {
	typ   transaction.ResourceType
	store *Store

	mu     sync.Mutex
	closed bool
	nopen  int // sessions not yet committed or rolled back
}

var _ transaction.ResourceManager = (*Manager)(nil)

// NewManager returns resource manager for store providing resources of type typ.
func NewManager(typ transaction.ResourceType, store *Store) *Manager {
	return &Manager{typ: typ, store: store}
}

func (m *Manager) ResourceType() transaction.ResourceType { return m.typ }
func (m *Manager) Store() *Store                          { return m.store }

// Open returns number of sessions not yet completed.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nopen
}

// BeginTransaction returns *Session.
func (m *Manager) BeginTransaction(ctx context.Context, mode transaction.Mode, active bool) (transaction.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.Wrapf(resource.ErrClosed, "%s", m.store.name)
	}
	m.nopen++

	s := &Session{m: m, readOnly: mode.ReadOnly(), active: active}
	if active {
		s.pending = make(map[string][]byte)
		switch mode.Isolation() {
		case transaction.IsolationRepeatableRead, transaction.IsolationSerializable:
			s.seen = make(map[string]uint64)
		}
	}
	return s, nil
}

// CommitTransaction applies writes of s to the store.
//
// With repeatable-read and serializable isolation the commit fails with
// ErrConflict if any key the session read or wrote was changed in the
// store after the session first accessed it.
func (m *Manager) CommitTransaction(ctx context.Context, r transaction.Resource) error {
	s := r.(*Session)
	if err := s.finish(); err != nil {
		return err
	}
	pending := s.pending
	s.pending = nil
	if len(pending) == 0 {
		return nil
	}

	err := m.store.apply(pending, s.seen)
	if err != nil {
		s.commitFailed = true
	}
	return err
}

// RollbackTransaction discards writes of s. After failed commit it is a no-op.
func (m *Manager) RollbackTransaction(ctx context.Context, r transaction.Resource) error {
	s := r.(*Session)
	s.pending = nil
	if s.commitFailed {
		return nil
	}
	return s.finish()
}

// Close makes the manager refuse new sessions. The store is left intact.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Session is the resource of memkv transaction.
//
// In active mode writes are staged and applied to the store at commit;
// otherwise they go to the store directly. Reads see the latest committed
// data.
type Session struct {
	m        *Manager
	readOnly bool
	active   bool
	done     bool

	commitFailed bool

	pending map[string][]byte // key -> value; nil value = deleted
	seen    map[string]uint64 // key -> revision at first access; nil if not tracked
}

var _ resource.KV = (*Session)(nil)

func (s *Session) finish() error {
	if s.done {
		return resource.ErrDone
	}
	s.done = true

	s.m.mu.Lock()
	s.m.nopen--
	s.m.mu.Unlock()
	return nil
}

func (s *Session) Get(key []byte) ([]byte, bool, error) {
	if s.done {
		return nil, false, resource.ErrDone
	}
	if v, ok := s.pending[string(key)]; ok {
		return v, v != nil, nil
	}
	v, ok, rev := s.m.store.load(string(key))
	s.observe(string(key), rev)
	return v, ok, nil
}

// observe remembers rev as revision of key if it is the first access to key.
func (s *Session) observe(key string, rev uint64) {
	if s.seen == nil {
		return
	}
	if _, already := s.seen[key]; !already {
		s.seen[key] = rev
	}
}

func (s *Session) Put(key, value []byte) error {
	v := make([]byte, len(value)) // never nil
	copy(v, value)
	return s.write(key, v)
}

func (s *Session) Delete(key []byte) error {
	return s.write(key, nil)
}

func (s *Session) write(key, value []byte) error {
	switch {
	case s.done:
		return resource.ErrDone
	case s.readOnly:
		return resource.ErrReadOnly
	}

	if !s.active {
		return s.m.store.apply(map[string][]byte{string(key): value}, nil)
	}

	if s.seen != nil {
		_, _, rev := s.m.store.load(string(key))
		s.observe(string(key), rev)
	}
	s.pending[string(key)] = value
	return nil
}

// ---- open by URL ----

func openURL(ctx context.Context, u *url.URL, typ transaction.ResourceType) (transaction.ResourceManager, error) {
	name := u.Host + u.Path
	if name == "" {
		return nil, errors.New("memkv: store name not specified")
	}
	return NewManager(typ, Lookup(name)), nil
}

func init() {
	resource.RegisterOpener("mem", openURL)
}
