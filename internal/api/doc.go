// Package api defines the daemon's HTTP wire types, the converters from
// internal models, and the Client the CLI uses to talk to a running daemon.
//
// # Key Types
//
// workflow.View is served as-is for project status so the HTTP payload and
// the CLI's direct-store fallback render identically.
//
// Artifact: transport form of an artifact document. The embedding is
// omitted; Text is included only when the caller asks for it.
//
// DaemonStatus: lock path, data directory and the live runs.
//
// # Design Notes
//
// JSON keys are snake_case to match the status record's stored form.
// Timestamps use RFC3339 with milliseconds.
package api
