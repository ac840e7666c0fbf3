// Package preflight provides readiness checks for the filesystem paths,
// instruction pack and remote services quire depends on.
//
// The CLI "quire doctor" command runs RunAll and renders each Result.
// Remote checks are single-attempt and bounded by a short timeout so a
// dead endpoint reports quickly instead of retrying.
package preflight
