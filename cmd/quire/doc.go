// Command quire drives multi-stage novel generation. It serves the daemon,
// runs projects in the foreground, and inspects project stores either
// through the daemon HTTP API or, when no daemon answers, directly on disk.
package main
