// Package commands defines the peerchat CLI and wires dependencies for subcommands.
//
// Commands
//
//   - listen    Issue a token and wait for one peer
//   - connect   Dial a listening peer with its token
//   - token     Print a fresh token
//   - netinfo   Print the local and public IP address
//
// Inside a session every input line is sent as a chat message, except
// "/file <path>" which sends a file in the background and "/quit" which
// closes the session.
//
// # Implementation
//
// The root command loads configuration (flags, PEERCHAT_* environment,
// peerchat.yaml) and builds the dependency graph before any subcommand runs.
package commands
