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
// errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies errors returned by this package.
type ErrorKind int

const (
	// ConfigurationError: invalid mode, conflicting resource manager registration.
	ConfigurationError ErrorKind = iota + 1

	// PropagationError: propagation rules forbid the request.
	PropagationError

	// LifecycleError: operation is not allowed in the transaction's current status.
	LifecycleError

	// ResourceError: resource manager is missing or failed.
	ResourceError

	// TimeoutError: transaction deadline passed. The transaction is marked rollback-only.
	TimeoutError
)

var kindStr = [...]string{
	ConfigurationError: "configuration error",
	PropagationError:   "propagation error",
	LifecycleError:     "lifecycle error",
	ResourceError:      "resource error",
	TimeoutError:       "timeout",
}

func (k ErrorKind) String() string {
	if 0 < k && int(k) < len(kindStr) {
		return kindStr[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned by Manager and Transaction operations.
type Error struct {
	Kind ErrorKind
	Op   string // operation, e.g. "commit"
	Msg  string // what went wrong
	Err  error  // underlying cause, if any
}

func (e *Error) Error() string {
	s := "transaction: " + e.Op + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err, or any error in its cause chain, is *Error of given kind.
//
// The whole chain is inspected: e.g. commit of a timed out transaction
// reports LifecycleError caused by TimeoutError, and IsKind is true for both.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

func newError(kind ErrorKind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

func configErrorf(op, format string, argv ...interface{}) *Error {
	return newError(ConfigurationError, op, fmt.Sprintf(format, argv...), nil)
}

func propagationErrorf(op, format string, argv ...interface{}) *Error {
	return newError(PropagationError, op, fmt.Sprintf(format, argv...), nil)
}

func lifecycleErrorf(op, format string, argv ...interface{}) *Error {
	return newError(LifecycleError, op, fmt.Sprintf(format, argv...), nil)
}
