package artifact

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"quire/internal/fileutil"
	"quire/internal/logging"
	"quire/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

// snapshotVersion is bumped whenever schema.sql changes incompatibly.
const snapshotVersion = 1

const (
	sqliteBusyCode    = 5
	persistMaxBackoff = 500 * time.Millisecond
)

func (s *Store) checkpointLocked(ctx context.Context) error {
	start := time.Now()
	docs := make([]*Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.docs[id])
	}

	delay := s.opts.PersistBackoff
	var err error
	for attempt := 1; attempt <= s.opts.PersistAttempts; attempt++ {
		err = writeSnapshot(ctx, s.dbPath(), docs, s.seq, s.opts.Dimension)
		if err == nil {
			break
		}
		if ctx.Err() != nil || attempt == s.opts.PersistAttempts {
			break
		}
		s.logger.Warn("checkpoint attempt failed; retrying",
			logging.Event("checkpoint_retry"),
			logging.Int("attempt", attempt),
			logging.Bool("busy", isSQLiteBusy(err)),
			logging.Error(err),
		)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			err = sleepErr
			break
		}
		delay = min(delay*2, persistMaxBackoff)
	}
	metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CheckpointFailures.Inc()
		logging.ErrorWithContext(s.logger, "checkpoint failed", "checkpoint_failed",
			logging.Hint("documents remain in memory; retry with a checkpoint"),
			logging.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.writeSummaryLocked()
	return nil
}

type summary struct {
	DocumentCount int            `json:"document_count"`
	Partitions    map[string]int `json:"partitions"`
	ApproxBytes   int64          `json:"approx_bytes"`
	LastUpdated   time.Time      `json:"last_updated"`
}

func (s *Store) writeSummaryLocked() {
	stats := s.statsLocked()
	data, err := json.MarshalIndent(summary{
		DocumentCount: stats.Documents,
		Partitions:    stats.Partitions,
		ApproxBytes:   stats.ApproxBytes,
		LastUpdated:   s.opts.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(s.dir, summaryFile), data, 0o644); err != nil {
		s.logger.Warn("summary write failed", logging.Error(err))
	}
}

func writeSnapshot(ctx context.Context, path string, docs []*Document, seq int64, dimension int) error {
	tmp := fileutil.TempSibling(path)
	if err := writeSnapshotFile(ctx, tmp, docs, seq, dimension); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return fileutil.ReplaceFile(tmp, path)
}

func writeSnapshotFile(ctx context.Context, path string, docs []*Document, seq int64, dimension int) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close snapshot: %w", closeErr)
		}
	}()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=MEMORY"); err != nil {
		return fmt.Errorf("apply pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	meta := map[string]string{
		"snapshot_version": strconv.Itoa(snapshotVersion),
		"seq":              strconv.FormatInt(seq, 10),
		"dimension":        strconv.Itoa(dimension),
		"written_at":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err = tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents
        (seq, id, partition, schema, text, attributes_json, embedding, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		attrs, marshalErr := json.Marshal(doc.Attributes)
		if marshalErr != nil {
			err = fmt.Errorf("encode attributes for %s: %w", doc.ID, marshalErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx,
			doc.Seq,
			doc.ID,
			doc.Partition,
			doc.Schema,
			doc.Text,
			string(attrs),
			encodeVector(doc.Embedding),
			doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("write document %s: %w", doc.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads every loadable document in seq order. Rows that cannot
// be decoded are skipped with a warning.
func loadSnapshot(ctx context.Context, path string, dimension int, logger *slog.Logger) ([]Document, int64, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("stat snapshot: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, 0, err
	}
	if meta["snapshot_version"] != strconv.Itoa(snapshotVersion) {
		return nil, 0, fmt.Errorf("%w: found %q, want %d", ErrSnapshotVersion, meta["snapshot_version"], snapshotVersion)
	}
	seq, _ := strconv.ParseInt(meta["seq"], 10, 64)

	rows, err := db.QueryContext(ctx, `SELECT seq, id, partition, schema, text, attributes_json, embedding, created_at
        FROM documents ORDER BY seq`)
	if err != nil {
		return nil, 0, fmt.Errorf("read documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			attrsJSON string
			blob      []byte
			created   string
		)
		if err := rows.Scan(&doc.Seq, &doc.ID, &doc.Partition, &doc.Schema, &doc.Text, &attrsJSON, &blob, &created); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		if reason := decodeRow(&doc, attrsJSON, blob, created, dimension); reason != "" {
			logger.Warn("skipping unreadable document",
				logging.Event("document_skipped"),
				logging.String("document_id", doc.ID),
				logging.String("reason", reason),
			)
			continue
		}
		docs = append(docs, doc)
		seq = max(seq, doc.Seq)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, seq, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("%w: missing meta table", ErrSnapshotVersion)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func decodeRow(doc *Document, attrsJSON string, blob []byte, created string, dimension int) string {
	if err := json.Unmarshal([]byte(attrsJSON), &doc.Attributes); err != nil {
		return "attributes: " + err.Error()
	}
	if doc.Attributes == nil {
		doc.Attributes = map[string]string{}
	}
	vec, ok := decodeVector(blob)
	if !ok {
		return fmt.Sprintf("embedding blob has %d bytes", len(blob))
	}
	if len(vec) != dimension {
		vec = resize(vec, dimension)
	}
	doc.Embedding = vec
	at, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return "created_at: " + err.Error()
	}
	doc.CreatedAt = at
	return ""
}

func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, bool) {
	if len(buf)%8 != 0 {
		return nil, false
	}
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec, true
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func removeStaleTemps(dir string, logger *slog.Logger) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			logger.Debug("removed stale temp file", logging.String("path", filepath.Base(path)))
		}
	}
}
