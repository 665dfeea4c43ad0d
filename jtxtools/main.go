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

// Package jtxtools provides tools for working with transactional resources from command line.
package jtxtools

import (
	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/jtx/internal/log"
)

// registry of all jtxtools commands
var commands = prog.CommandRegistry{
	// NOTE the order commands are listed here is the order how they will appear in help
	{Name: "put", Summary: putSummary, Usage: putUsage, Main: putMain},
	{Name: "get", Summary: getSummary, Usage: getUsage, Main: getMain},
	{Name: "sql", Summary: sqlSummary, Usage: sqlUsage, Main: sqlMain},
	{Name: "schemes", Summary: schemesSummary, Usage: schemesUsage, Main: schemesMain},
}

// main jtxtools driver
var Prog = prog.MainProg{
	Name:       "jtx",
	Summary:    "Jtx is a tool to run operations on transactional resources",
	Commands:   commands,
	HelpTopics: helpTopics,
}

// fatal flushes the log and aborts the program with err.
func fatal(err error) {
	log.Flush()
	prog.Fatal(err)
}
