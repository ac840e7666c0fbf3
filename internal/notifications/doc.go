// Package notifications delivers run outcomes via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// daemon calls it when a run finishes complete or errored; interrupted runs
// are not reported.
package notifications
