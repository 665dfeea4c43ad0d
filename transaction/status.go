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

import "fmt"

// Status describes status of a transaction.
type Status int

const (
	Active         Status = iota // transaction is in progress
	MarkedRollback               // transaction can only be rolled back
	Committed                    // commit finished successfully
	RolledBack                   // rollback finished successfully
	Unknown                      // rollback finished, but some resource failed to roll back
	NoTransaction                // placeholder - no physical transaction
	Committing                   // commit started
	RollingBack                  // rollback started
)

var statusStr = [...]string{
	Active:         "active",
	MarkedRollback: "marked-rollback",
	Committed:      "committed",
	RolledBack:     "rolled-back",
	Unknown:        "unknown",
	NoTransaction:  "no-transaction",
	Committing:     "committing",
	RollingBack:    "rolling-back",
}

func (s Status) String() string {
	if 0 <= s && int(s) < len(statusStr) {
		return statusStr[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// completed reports whether s is terminal.
func (s Status) completed() bool {
	return s == Committed || s == RolledBack
}
