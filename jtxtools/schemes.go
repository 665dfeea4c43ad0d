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

package jtxtools
// jtx schemes - list supported resource URL schemes

import (
	"flag"
	"fmt"
	"io"
	"os"

	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/jtx/resource"
)

// Schemes prints resource URL schemes registered to the program, one per line.
func Schemes(w io.Writer) {
	for _, scheme := range resource.AvailableSchemes() {
		fmt.Fprintf(w, "%s://\n", scheme)
	}
}

const schemesSummary = "list supported resource URL schemes"

func schemesUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: jtx schemes
List resource URL schemes supported by this program.
`)
}

func schemesMain(argv []string) {
	flags := flag.FlagSet{Usage: func() { schemesUsage(os.Stderr) }}
	flags.Init("", flag.ExitOnError)
	flags.Parse(argv[1:])

	if flags.NArg() != 0 {
		flags.Usage()
		prog.Exit(2)
	}
	Schemes(os.Stdout)
}
