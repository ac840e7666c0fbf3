package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"quire/internal/config"
	"quire/internal/fileutil"
	"quire/internal/logging"
	"quire/internal/metrics"
	"quire/internal/services"
)

const (
	snapshotFile = "artifacts.db"
	summaryFile  = "summary.json"
	lockFile     = ".lock"
)

// Embedder produces the vector stored alongside each document.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float64, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

// Options tunes a Store. Zero values take the defaults from DefaultOptions,
// except MinSimilarity where zero means "no threshold".
type Options struct {
	Dimension       int
	EmbedAttempts   int
	EmbedBackoff    time.Duration
	PersistAttempts int
	PersistBackoff  time.Duration
	TopK            int
	MinSimilarity   float64
	Similarity      Similarity
	Logger          *slog.Logger
	Now             func() time.Time
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Dimension:       384,
		EmbedAttempts:   3,
		EmbedBackoff:    time.Second,
		PersistAttempts: 3,
		PersistBackoff:  25 * time.Millisecond,
		TopK:            5,
		MinSimilarity:   0.7,
		Similarity:      Cosine,
	}
}

// OptionsFromConfig derives store options from the [store] section.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	opts := DefaultOptions()
	if cfg != nil {
		opts.Dimension = cfg.Store.Dimension
		opts.EmbedAttempts = cfg.Store.EmbedAttempts
		opts.EmbedBackoff = cfg.EmbedBackoff()
		opts.PersistAttempts = cfg.Store.PersistAttempts
		opts.TopK = cfg.Store.TopK
		opts.MinSimilarity = cfg.Store.MinSimilarity
	}
	opts.Logger = logger
	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Dimension <= 0 {
		o.Dimension = def.Dimension
	}
	if o.EmbedAttempts <= 0 {
		o.EmbedAttempts = def.EmbedAttempts
	}
	if o.EmbedBackoff < 0 {
		o.EmbedBackoff = 0
	}
	if o.PersistAttempts <= 0 {
		o.PersistAttempts = def.PersistAttempts
	}
	if o.PersistBackoff <= 0 {
		o.PersistBackoff = def.PersistBackoff
	}
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if o.Similarity == nil {
		o.Similarity = Cosine
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Store is a per-project document store. All methods are safe for concurrent use.
type Store struct {
	dir      string
	project  string
	opts     Options
	embedder Embedder
	logger   *slog.Logger
	lock     *flock.Flock

	mu           sync.Mutex
	docs         map[string]*Document
	order        []string
	partitions   map[string][]string
	seq          int64
	lastModified time.Time
	closed       bool
}

// Open loads (or creates) the store in dir and takes the project lock.
func Open(ctx context.Context, dir string, embedder Embedder, opts Options) (*Store, error) {
	if embedder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "artifact open", "embedder required", nil)
	}
	opts = opts.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	project := filepath.Base(dir)
	s := &Store{
		dir:        dir,
		project:    project,
		opts:       opts,
		embedder:   embedder,
		logger:     logging.NewComponentLogger(opts.Logger, "artifact").With(logging.Project(project)),
		lock:       lock,
		docs:       make(map[string]*Document),
		partitions: make(map[string][]string),
	}

	removeStaleTemps(dir, s.logger)
	docs, seq, err := loadSnapshot(ctx, s.dbPath(), opts.Dimension, s.logger)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	for i := range docs {
		doc := docs[i]
		s.docs[doc.ID] = &doc
		s.order = append(s.order, doc.ID)
		s.partitions[doc.Partition] = append(s.partitions[doc.Partition], doc.ID)
		if doc.CreatedAt.After(s.lastModified) {
			s.lastModified = doc.CreatedAt
		}
	}
	s.seq = seq
	if len(docs) > 0 {
		s.logger.Debug("artifact store loaded", logging.Int("documents", len(docs)), logging.Int64("seq", seq))
	}
	return s, nil
}

// Close releases the project lock. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lock.Unlock()
}

// Dir returns the project directory.
func (s *Store) Dir() string { return s.dir }

// Project returns the project identifier (the directory name).
func (s *Store) Project() string { return s.project }

// Dimension returns the embedding length every document carries.
func (s *Store) Dimension() int { return s.opts.Dimension }

func (s *Store) dbPath() string { return filepath.Join(s.dir, snapshotFile) }

// Put embeds and stores a new document, then checkpoints. The returned id is
// valid even when the error is ErrPersist: the document is held in memory
// and included in the next successful checkpoint.
func (s *Store) Put(ctx context.Context, entry Entry) (string, error) {
	partition := strings.TrimSpace(entry.Partition)
	if partition == "" {
		return "", services.Wrap(services.ErrValidation, "", "artifact put", "partition required", nil)
	}
	entry.Partition = partition
	if entry.Schema == "" {
		entry.Schema = SchemaText
	}

	vec, err := s.embed(ctx, entry.Text)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	doc := s.insertLocked(entry, vec)
	metrics.ArtifactPuts.WithLabelValues(partition).Inc()
	if err := s.checkpointLocked(ctx); err != nil {
		return doc.ID, err
	}
	return doc.ID, nil
}

func (s *Store) insertLocked(entry Entry, vec []float64) *Document {
	seq := s.seq + 1
	now := s.opts.Now().UTC()
	attrs := maps.Clone(entry.Attributes)
	if attrs == nil {
		attrs = make(map[string]string, 2)
	}
	attrs[AttrAgent] = entry.Partition
	attrs[AttrTimestamp] = now.Format(time.RFC3339Nano)

	doc := &Document{
		ID:         s.newIDLocked(entry.Text, now, seq),
		Partition:  entry.Partition,
		Schema:     entry.Schema,
		Text:       entry.Text,
		Attributes: attrs,
		Embedding:  vec,
		CreatedAt:  now,
		Seq:        seq,
	}
	s.docs[doc.ID] = doc
	s.order = append(s.order, doc.ID)
	s.partitions[doc.Partition] = append(s.partitions[doc.Partition], doc.ID)
	s.seq = seq
	s.lastModified = now
	return doc
}

func (s *Store) newIDLocked(text string, at time.Time, seq int64) string {
	for salt := 0; ; salt++ {
		h := sha256.New()
		h.Write([]byte(text))
		h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
		h.Write([]byte(strconv.FormatInt(seq, 10)))
		if salt > 0 {
			h.Write([]byte(strconv.Itoa(salt)))
		}
		id := hex.EncodeToString(h.Sum(nil))[:32]
		if _, taken := s.docs[id]; !taken {
			return id
		}
	}
}

func (s *Store) embed(ctx context.Context, text string) ([]float64, error) {
	attempts := s.opts.EmbedAttempts
	var lastErr error
	tried := 0
	for tried < attempts {
		tried++
		vec, err := s.embedder.Embed(ctx, text)
		if err == nil && len(vec) == 0 {
			err = errors.New("empty embedding")
		}
		if err == nil {
			return resize(vec, s.opts.Dimension), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		if !services.Retryable(err) || tried == attempts {
			break
		}
		metrics.EmbedRetries.Inc()
		s.logger.Warn("embedding attempt failed; retrying",
			logging.Event("embed_retry"),
			logging.Int("attempt", tried),
			logging.Int("max_attempts", attempts),
			logging.Error(err),
		)
		if err := sleepContext(ctx, s.opts.EmbedBackoff); err != nil {
			return nil, err
		}
	}
	metrics.EmbedFailures.Inc()
	return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrEmbedding, tried, lastErr)
}

// Get returns a copy of the document with id.
func (s *Store) Get(id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, false
	}
	return doc.clone(), true
}

// Partition returns the documents of one partition in store order.
func (s *Store) Partition(name string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(s.partitions[name], nil)
}

// Partitions lists partition names that currently hold documents.
func (s *Store) Partitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.partitions))
	for name, ids := range s.partitions {
		if len(ids) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Documents returns every document in store order.
func (s *Store) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(s.order, nil)
}

// Filter returns documents whose attribute key equals value, in store order.
// The comparison is literal, so "*" only matches a stored "*". An empty
// partition searches the whole store.
func (s *Store) Filter(key, value, partition string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(s.scopeLocked(partition), attrMatcher(key, value))
}

// Latest returns the newest document by (CreatedAt, Seq) matching key=value.
func (s *Store) Latest(key, value, partition string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match := attrMatcher(key, value)
	var best *Document
	for _, id := range s.scopeLocked(partition) {
		doc := s.docs[id]
		if !match(doc) {
			continue
		}
		if best == nil || doc.Newer(*best) {
			best = doc
		}
	}
	if best == nil {
		return Document{}, false
	}
	return best.clone(), true
}

func attrMatcher(key, value string) func(*Document) bool {
	return func(doc *Document) bool {
		got, ok := doc.Attributes[key]
		return ok && got == value
	}
}

func (s *Store) scopeLocked(partition string) []string {
	if partition == "" {
		return s.order
	}
	return s.partitions[partition]
}

func (s *Store) collectLocked(ids []string, keep func(*Document) bool) []Document {
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc := s.docs[id]
		if keep != nil && !keep(doc) {
			continue
		}
		out = append(out, doc.clone())
	}
	return out
}

// Delete removes a document. It reports false, and changes nothing, when the
// id is unknown.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	doc, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	delete(s.docs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	remaining := slices.DeleteFunc(s.partitions[doc.Partition], func(v string) bool { return v == id })
	if len(remaining) == 0 {
		delete(s.partitions, doc.Partition)
	} else {
		s.partitions[doc.Partition] = remaining
	}
	s.lastModified = s.opts.Now().UTC()
	return true, s.checkpointLocked(ctx)
}

// Clear removes every document. The sequence counter is kept so ids are
// never reused.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.docs = make(map[string]*Document)
	s.order = nil
	s.partitions = make(map[string][]string)
	s.lastModified = s.opts.Now().UTC()
	s.logger.Info("artifact store cleared", logging.Event("store_cleared"))
	return s.checkpointLocked(ctx)
}

// Checkpoint writes the current state to disk.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.checkpointLocked(ctx)
}

// Backup copies the current snapshot to dst with integrity verification.
func (s *Store) Backup(ctx context.Context, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := os.Stat(s.dbPath()); errors.Is(err, os.ErrNotExist) {
		if err := s.checkpointLocked(ctx); err != nil {
			return err
		}
	}
	return fileutil.CopyFileVerified(s.dbPath(), dst)
}

// Stats summarizes the store.
type Stats struct {
	Documents       int            `json:"document_count"`
	Partitions      map[string]int `json:"partitions"`
	ApproxBytes     int64          `json:"approx_bytes"`
	Dimension       int            `json:"dimension"`
	LatestCreatedAt time.Time      `json:"latest_created_at"`
	LastModified    time.Time      `json:"last_modified"`
}

// Stats returns counts, an approximate in-memory size and recency data.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() Stats {
	stats := Stats{
		Documents:    len(s.docs),
		Partitions:   make(map[string]int, len(s.partitions)),
		Dimension:    s.opts.Dimension,
		LastModified: s.lastModified,
	}
	for name, ids := range s.partitions {
		stats.Partitions[name] = len(ids)
	}
	for _, doc := range s.docs {
		size := int64(len(doc.Text)) + int64(8*s.opts.Dimension)
		for k, v := range doc.Attributes {
			size += int64(len(k) + len(v))
		}
		stats.ApproxBytes += size
		if doc.CreatedAt.After(stats.LatestCreatedAt) {
			stats.LatestCreatedAt = doc.CreatedAt
		}
	}
	return stats
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
