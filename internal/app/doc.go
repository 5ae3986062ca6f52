// Package app wires application dependencies for the CLI.
//
// It loads Config from flags, environment and an optional peerchat.yaml,
// builds the logger, metrics registry, download store and network lookup,
// and exposes them via the Wire struct. Wire.NewSession assembles a
// session.Session from the loaded configuration.
package app
