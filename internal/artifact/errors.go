package artifact

import "errors"

var (
	// ErrEmbedding reports that embedding attempts were exhausted. The store
	// is left unmodified.
	ErrEmbedding = errors.New("artifact: embedding failed")
	// ErrPersist reports that a checkpoint could not be written. The
	// in-memory store already holds the change; Checkpoint may be retried.
	ErrPersist = errors.New("artifact: checkpoint failed")
	// ErrLocked reports that another process holds the project lock.
	ErrLocked = errors.New("artifact: project is locked by another process")
	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("artifact: document not found")
	// ErrClosed reports use of a closed store.
	ErrClosed = errors.New("artifact: store closed")
	// ErrSchemaMismatch reports that a document was decoded as the wrong schema.
	ErrSchemaMismatch = errors.New("artifact: schema mismatch")
	// ErrSnapshotVersion reports an on-disk snapshot written by an incompatible version.
	ErrSnapshotVersion = errors.New("artifact: snapshot version mismatch")
)
