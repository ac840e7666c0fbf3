// Package projectaccess gives the CLI one view of projects whether or not
// the daemon is running: API-backed when a daemon answers, direct store
// access otherwise. Operations that need a live run registry (reset) fail
// with ErrDaemonRequired on the direct backing.
package projectaccess
