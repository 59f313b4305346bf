// Package boltlog is the driver-wide logging seam. Library code never picks
// a concrete logging backend (spec §1 lists "logging sinks" as an external
// collaborator, out of scope); it accepts a logr.Logger and falls back to
// an stdr logger on stderr.
package boltlog

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Default returns the package-wide fallback logger: an stdr logger writing
// to os.Stderr. At stdr's default verbosity of 0 it prints error entries and
// V(0) info entries; info entries at V(1) and above are dropped unless the
// verbosity is raised with stdr.SetVerbosity.
func Default() logr.Logger {
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags))
}

// OrDefault returns l if it is a non-zero logr.Logger, otherwise Default().
// Every constructor in this module that accepts a logr.Logger funnels it
// through here so a nil-value caller never crashes on first use.
func OrDefault(l logr.Logger) logr.Logger {
	if l.GetSink() == nil {
		return Default()
	}
	return l
}

// Discard returns a logger that drops every record, for tests that want to
// silence library output entirely.
func Discard() logr.Logger {
	return logr.Discard()
}
