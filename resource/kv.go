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

package resource
// interfaces and errors shared by adapters

import (
	"github.com/pkg/errors"
)

var (
	ErrReadOnly = errors.New("write in read-only transaction")
	ErrDone     = errors.New("session already completed")
	ErrClosed   = errors.New("resource manager is closed")
	ErrConflict = errors.New("conflicting concurrent modification")
)

// KV is implemented by resources of key/value adapters.
//
// Writes done through a KV given out for an active transaction become
// visible to others only after commit. Writes through a pass-through
// resource are applied immediately.
type KV interface {
	// Get returns value stored under key. ok=false means there is no such key.
	Get(key []byte) (value []byte, ok bool, err error)

	// Put stores value under key.
	Put(key, value []byte) error

	// Delete removes key. Deleting absent key is not an error.
	Delete(key []byte) error
}
