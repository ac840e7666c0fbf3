// Package daemon coordinates the long-running quire process.
//
// It wires configuration, the project catalog and the workflow run registry
// into a single lifecycle with flock-based locking to prevent multiple
// instances. On start it resumes every project a previous process left in
// the running state, then serves the HTTP API used by the CLI:
// project creation, status, start and reset, artifact inspection, the
// assembled manuscript and Prometheus metrics.
//
// Keep orchestration logic here: stage execution lives in workflow and the
// stage agents in agents, while the daemon focuses on startup, shutdown and
// the transport surface.
package daemon
