// Package hub is the read side of a project's artifact store.
//
// It merges the partitions written by the early stages into de-duplicated
// aggregates (ideation, cast, setting, research, plot), composes those into
// the Snapshot every later stage is handed, and owns the project Status
// Record. Everything the hub writes lands in the "hub" partition as a new
// document; the current value of anything is the newest matching document.
//
// Missing or undecodable input never fails an aggregation: the category
// degrades to its empty value.
package hub
