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
// transaction mode: propagation, isolation, read-only, timeout

import (
	"fmt"
	"strings"
)

// Propagation tells how a transaction request relates to the transaction
// already running in the caller's context.
type Propagation int

const (
	// PropagationRequired joins the current transaction, or starts a new one if there is none.
	PropagationRequired Propagation = iota

	// PropagationSupports joins the current transaction, or runs without transaction if there is none.
	PropagationSupports

	// PropagationMandatory joins the current transaction; it is an error if there is none.
	PropagationMandatory

	// PropagationRequiresNew always starts a new transaction; the current one stays beneath it.
	PropagationRequiresNew

	// PropagationNotSupported always runs without transaction; the current one stays beneath.
	PropagationNotSupported

	// PropagationNever runs without transaction; it is an error if there is one.
	PropagationNever
)

var propagationStr = [...]string{
	PropagationRequired:     "required",
	PropagationSupports:     "supports",
	PropagationMandatory:    "mandatory",
	PropagationRequiresNew:  "requires-new",
	PropagationNotSupported: "not-supported",
	PropagationNever:        "never",
}

func (p Propagation) String() string {
	if 0 <= p && int(p) < len(propagationStr) {
		return propagationStr[p]
	}
	return fmt.Sprintf("propagation(%d)", int(p))
}

func (p Propagation) valid() bool {
	return 0 <= p && int(p) < len(propagationStr)
}

// ParsePropagation parses propagation as printed by Propagation.String.
//
// Case is ignored and '_' is accepted in place of '-'.
func ParsePropagation(s string) (Propagation, error) {
	norm := strings.Replace(strings.ToLower(s), "_", "-", -1)
	for p, ps := range propagationStr {
		if norm == ps {
			return Propagation(p), nil
		}
	}
	return 0, fmt.Errorf("propagation %q invalid", s)
}

// Isolation is transaction isolation level.
type Isolation int

const (
	IsolationDefault Isolation = iota // whatever the resource defaults to
	IsolationNone                     // transactions are not supported
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

var isolationStr = [...]string{
	IsolationDefault:         "default",
	IsolationNone:            "none",
	IsolationReadUncommitted: "read-uncommitted",
	IsolationReadCommitted:   "read-committed",
	IsolationRepeatableRead:  "repeatable-read",
	IsolationSerializable:    "serializable",
}

func (i Isolation) String() string {
	if 0 <= i && int(i) < len(isolationStr) {
		return isolationStr[i]
	}
	return fmt.Sprintf("isolation(%d)", int(i))
}

func (i Isolation) valid() bool {
	return 0 <= i && int(i) < len(isolationStr)
}

// ParseIsolation parses isolation level as printed by Isolation.String.
func ParseIsolation(s string) (Isolation, error) {
	norm := strings.Replace(strings.ToLower(s), "_", "-", -1)
	for i, is := range isolationStr {
		if norm == is {
			return Isolation(i), nil
		}
	}
	return 0, fmt.Errorf("isolation %q invalid", s)
}

// NoTimeout is the timeout value meaning transaction never times out.
const NoTimeout = -1

// Mode describes requested transaction behaviour.
//
// Mode is a value: setters return modified copy and leave the original
// intact, so a Mode can be shared freely, e.g.
//
//	var rw = transaction.NewMode().Required().WithReadOnly(false)
//
// Modes are comparable with ==.
//
// The zero Mode is Required, Default isolation, read-write, without timeout.
type Mode struct {
	propagation Propagation
	isolation   Isolation
	readOnly    bool
	timeout     int  // seconds; meaningful only if timed
	timed       bool
}

// NewMode returns the default mode: Supports, Default isolation, read-only, without timeout.
func NewMode() Mode {
	return Mode{propagation: PropagationSupports, readOnly: true}
}

func (m Mode) Propagation() Propagation { return m.propagation }
func (m Mode) Isolation() Isolation     { return m.isolation }
func (m Mode) ReadOnly() bool           { return m.readOnly }

// Timeout returns transaction timeout in seconds, or NoTimeout.
func (m Mode) Timeout() int {
	if !m.timed {
		return NoTimeout
	}
	return m.timeout
}

func (m Mode) WithPropagation(p Propagation) Mode { m.propagation = p; return m }
func (m Mode) WithIsolation(i Isolation) Mode     { m.isolation = i; return m }
func (m Mode) WithReadOnly(readOnly bool) Mode    { m.readOnly = readOnly; return m }

// WithTimeout sets timeout in seconds. NoTimeout disables it.
//
// Values < NoTimeout are rejected when the mode is used.
func (m Mode) WithTimeout(seconds int) Mode {
	if seconds == NoTimeout {
		m.timeout, m.timed = 0, false
	} else {
		m.timeout, m.timed = seconds, true
	}
	return m
}

func (m Mode) Required() Mode     { return m.WithPropagation(PropagationRequired) }
func (m Mode) Supports() Mode     { return m.WithPropagation(PropagationSupports) }
func (m Mode) Mandatory() Mode    { return m.WithPropagation(PropagationMandatory) }
func (m Mode) RequiresNew() Mode  { return m.WithPropagation(PropagationRequiresNew) }
func (m Mode) NotSupported() Mode { return m.WithPropagation(PropagationNotSupported) }
func (m Mode) Never() Mode        { return m.WithPropagation(PropagationNever) }

// Validate checks that m can be used to request a transaction.
func (m Mode) Validate() error {
	switch {
	case !m.propagation.valid():
		return configErrorf("validate mode", "invalid propagation %s", m.propagation)
	case !m.isolation.valid():
		return configErrorf("validate mode", "invalid isolation %s", m.isolation)
	case m.timed && m.timeout < NoTimeout:
		return configErrorf("validate mode", "invalid timeout %d", m.timeout)
	}
	return nil
}

// String returns human-readable representation of the mode, e.g.
//
//	(required, serializable, rw, 5s)
func (m Mode) String() string {
	rw := "rw"
	if m.readOnly {
		rw = "ro"
	}
	timeout := "∞"
	if m.timed {
		timeout = fmt.Sprintf("%ds", m.timeout)
	}
	return fmt.Sprintf("(%s, %s, %s, %s)", m.propagation, m.isolation, rw, timeout)
}
