// Package artifact implements the per-project document store every stage
// reads from and writes to.
//
// A Store holds immutable Documents grouped into partitions (one per stage).
// Each document carries a declared schema, free-form string attributes and an
// embedding resized to the store's dimension. Supported lookups are exact
// attribute filters, recency (Latest) and similarity search; Query keeps the
// historical "key:value means filter, anything else means search" dispatch.
//
// Every mutation checkpoints the whole store into a self-contained SQLite
// snapshot that is written beside the live file and renamed over it, so
// artifacts.db is always a complete, loadable database. A summary.json is
// refreshed alongside for humans; it is never read back.
//
// Opening a store takes an exclusive advisory lock on the project directory.
// Within a process, share one *Store per project.
package artifact
