// Package logs reads the daemon log for the CLI: the last lines of
// <log_dir>/quire.log, or lines appended after a saved offset, optionally
// narrowed to one project.
package logs
