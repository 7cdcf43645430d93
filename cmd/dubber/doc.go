// Package main hosts the dubber CLI entrypoint and command graph.
//
// The cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API, falling back to direct job-store access for
// operations that remain safe while the daemon is down. It centralizes
// configuration resolution and API discovery so subcommands can focus on
// user experience instead of wiring.
package main
