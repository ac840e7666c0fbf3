// Package daemonctl launches and stops the background quire daemon for the
// CLI. A serving daemon is detected through its HTTP API and stopped through
// the pid file it writes next to its logs.
package daemonctl
