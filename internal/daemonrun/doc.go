// Package daemonrun bootstraps quire processes: it builds the shared
// runtime (embedder, generation client, instruction pack, project catalog,
// workflow engine) and runs the daemon until a shutdown signal arrives.
package daemonrun
