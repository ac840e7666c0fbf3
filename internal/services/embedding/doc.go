// Package embedding turns artifact text into vectors for similarity search.
//
// Two providers exist: OpenAIClient calls an OpenAI-compatible /embeddings
// endpoint (Ollama's native response shape is accepted too), and Hasher is a
// deterministic feature-hashing embedder that needs no network. New selects
// one from configuration.
//
// Clients make a single attempt per call. Transient failures (429, 5xx,
// network errors) are tagged services.ErrTransient so the artifact store's
// retry loop can decide whether to try again.
package embedding
