// Package services defines shared utilities consumed by the workflow engine,
// stage agents and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, stage names, unit indexes, run
//     IDs and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures carry a
//     classification that callers can test with errors.Is.
//
// Subpackages hold the clients for the remote generation and embedding
// services.
package services
