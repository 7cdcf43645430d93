// Package queue persists dubbing jobs and their progress logs in SQLite.
//
// A job moves through pending, running, and one of two terminal states, done
// or failed. While running, the stage column records which pipeline stage is
// executing. Terminal jobs carry either an output asset or an error message,
// never both.
package queue
