// Package workflow drives a project through the fixed stage sequence.
//
// Stages run in dependency order (ideation, research, cast, setting, plot,
// planning, content, assembly); content fans out once per planned unit. Each
// stage receives the hub's integrated snapshot, invokes its Agent and records
// progress on the project's status record. Stage output only ever travels
// through the artifact store.
//
// Failures are handled by a per-stage Strategy table. A recoverable stage
// gets a synthesized minimal artifact tagged with the original error and the
// run continues; a fan-out stage skips failing units and synthesizes a
// single placeholder only when none succeeded; a stage without a strategy
// ends the run in the error state.
//
// A Registry owns one Run per project. Runs have no cancel primitive of
// their own: interrupting the registry's context leaves the record running,
// and Reset later resumes it from the recorded completed stages and units.
package workflow
