package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragcore/ragcore/internal/errors"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// SQLiteStore is the authoritative Store implementation: sources, chunks,
// and chunk embeddings, backed by a pooled *sql.DB over modernc.org/sqlite.
type SQLiteStore struct {
	db              *sql.DB
	path            string
	acquireTimeout  time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// validateSQLiteIntegrity runs PRAGMA integrity_check against an existing
// database file before the pool opens it, so a corrupted file is detected
// and cleared rather than silently served.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (or creates) the store at path. An empty path opens
// an in-memory database, used by tests. A corrupted on-disk file is
// detected via PRAGMA integrity_check and cleared automatically before the
// pool is opened, mirroring the auto-recovery the ANN index applies to its
// own persistence file.
func NewSQLiteStore(path string, poolSize int, acquireTimeoutMS int, cacheSizeKB int) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.IO(errors.ErrCodePersistenceWriteFailed, "create store directory", err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("store_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, errors.IO(errors.ErrCodeIndexCorrupt, "store corrupted and cannot be cleared", removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Database(errors.ErrCodeSQLFailure, "open store", err)
	}

	if poolSize <= 0 {
		poolSize = 4
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeKB),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.Database(errors.ErrCodeSQLFailure, "apply pragma "+p, err)
		}
	}

	if acquireTimeoutMS <= 0 {
		acquireTimeoutMS = 5000
	}

	return &SQLiteStore{
		db:             db,
		path:           path,
		acquireTimeout: time.Duration(acquireTimeoutMS) * time.Millisecond,
	}, nil
}

// withAcquireTimeout bounds ctx to the configured pool acquisition timeout,
// so a saturated pool surfaces as a DatabaseError instead of hanging.
func (s *SQLiteStore) withAcquireTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.acquireTimeout)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	uri TEXT NOT NULL,
	content_type TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL UNIQUE,
	metadata TEXT NOT NULL DEFAULT '',
	byte_size INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	content TEXT NOT NULL,
	start_pos INTEGER NOT NULL DEFAULT 0,
	end_pos INTEGER NOT NULL DEFAULT 0,
	token_count INTEGER NOT NULL,
	chunk_type TEXT NOT NULL,
	header_path TEXT NOT NULL DEFAULT '',
	batch_id TEXT NOT NULL DEFAULT '',
	batch_index INTEGER NOT NULL DEFAULT 0,
	batch_total INTEGER NOT NULL DEFAULT 1,
	embedding BLOB,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_source_ordinal ON chunks(source_id, ordinal);

-- Legacy flat table retained for the simple document hydration fallback
-- used when a caller bypasses chunking and addresses whole documents
-- directly by content hash.
CREATE TABLE IF NOT EXISTS docs (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	embedding BLOB,
	created_at INTEGER NOT NULL
);
`

// Init creates the schema if it does not already exist and runs additive
// column migrations against a database created by an older schema version.
func (s *SQLiteStore) Init(ctx context.Context) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return wrapSQLiteErr(err, "initialize schema")
	}
	if err := s.migrateAdditiveColumns(ctx); err != nil {
		return err
	}
	return nil
}

// migrateAdditiveColumns adds columns that newer schema versions introduced
// but CREATE TABLE IF NOT EXISTS would not retrofit onto an existing table,
// e.g. "sources.metadata" and "chunks.chunk_type" gaining a default.
func (s *SQLiteStore) migrateAdditiveColumns(ctx context.Context) error {
	migrations := []struct {
		table, column, ddl string
	}{
		{"sources", "metadata", "ALTER TABLE sources ADD COLUMN metadata TEXT NOT NULL DEFAULT ''"},
		{"sources", "content", "ALTER TABLE sources ADD COLUMN content TEXT NOT NULL DEFAULT ''"},
		{"chunks", "chunk_type", "ALTER TABLE chunks ADD COLUMN chunk_type TEXT NOT NULL DEFAULT 'general'"},
	}
	for _, m := range migrations {
		has, err := s.hasColumn(ctx, m.table, m.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
			return wrapSQLiteErr(err, "migrate "+m.table+"."+m.column)
		}
	}
	return nil
}

func (s *SQLiteStore) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, wrapSQLiteErr(err, "inspect table "+table)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, wrapSQLiteErr(err, "scan table_info row")
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddSource inserts src keyed by content hash, or returns the existing
// source if the same content was already added.
func (s *SQLiteStore) AddSource(ctx context.Context, src *Source) (*Source, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	hash := src.ContentHash
	if hash == "" {
		return nil, errors.InvalidInput(errors.ErrCodeMalformedDocument, "source content hash is empty")
	}

	if existing, err := s.getSourceByHash(ctx, hash); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if src.ID == "" {
		src.ID = hash
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, uri, content_type, content, content_hash, metadata, byte_size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.URI, string(src.ContentType), src.Content, src.ContentHash, src.Metadata, src.ByteSize, src.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, wrapSQLiteErr(err, "insert source")
	}
	return src, nil
}

func (s *SQLiteStore) getSourceByHash(ctx context.Context, hash string) (*Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, uri, content_type, content, content_hash, metadata, byte_size, created_at FROM sources WHERE content_hash = ?`, hash)
	return scanSource(row)
}

func scanSource(row *sql.Row) (*Source, error) {
	var src Source
	var contentType string
	var createdAt int64
	if err := row.Scan(&src.ID, &src.URI, &contentType, &src.Content, &src.ContentHash, &src.Metadata, &src.ByteSize, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errNotFound
		}
		return nil, wrapSQLiteErr(err, "scan source")
	}
	src.ContentType = ContentType(contentType)
	src.CreatedAt = time.Unix(createdAt, 0)
	return &src, nil
}

var errNotFound = fmt.Errorf("not found")

func isNotFound(err error) bool {
	return err == errNotFound
}

// AddChunks inserts chunks in a single transaction.
func (s *SQLiteStore) AddChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err, "begin add-chunks transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, source_id, ordinal, content, start_pos, end_pos, token_count, chunk_type, header_path, batch_id, batch_index, batch_total, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return wrapSQLiteErr(err, "prepare chunk insert")
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, c := range chunks {
		var blob []byte
		if len(c.Embedding) > 0 {
			blob = encodeEmbedding(c.Embedding)
		}
		created := now
		if !c.CreatedAt.IsZero() {
			created = c.CreatedAt.Unix()
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.SourceID, c.Ordinal, c.Content, c.StartPos, c.EndPos, c.TokenCount, string(c.ChunkType),
			c.HeaderPath, c.BatchID, c.BatchIndex, c.BatchTotal, blob, created, now,
		); err != nil {
			return wrapSQLiteErr(err, "insert chunk")
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapSQLiteErr(err, "commit add-chunks transaction")
	}
	return nil
}

// DeleteSource removes a source; ON DELETE CASCADE removes its chunks.
func (s *SQLiteStore) DeleteSource(ctx context.Context, sourceID string) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID); err != nil {
		return wrapSQLiteErr(err, "delete source")
	}
	return nil
}

// GetSource retrieves a source by ID.
func (s *SQLiteStore) GetSource(ctx context.Context, sourceID string) (*Source, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, uri, content_type, content, content_hash, metadata, byte_size, created_at FROM sources WHERE id = ?`, sourceID)
	src, err := scanSource(row)
	if isNotFound(err) {
		return nil, errors.InvalidInput(errors.ErrCodeMalformedDocument, "source not found: "+sourceID)
	}
	return src, err
}

// GetSourceChunks retrieves every chunk belonging to sourceID, ordered by
// Ordinal.
func (s *SQLiteStore) GetSourceChunks(ctx context.Context, sourceID string) ([]*Chunk, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, ordinal, content, start_pos, end_pos, token_count, chunk_type, header_path, batch_id, batch_index, batch_total, embedding, created_at, updated_at
		FROM chunks WHERE source_id = ? ORDER BY ordinal ASC
	`, sourceID)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query source chunks")
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var out []*Chunk
	for rows.Next() {
		c, blob, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			emb, decErr := decodeEmbedding(blob)
			if decErr != nil {
				return nil, decErr
			}
			c.Embedding = emb
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLiteErr(err, "iterate chunk rows")
	}
	return out, nil
}

func scanChunkRow(rows *sql.Rows) (*Chunk, []byte, error) {
	var c Chunk
	var chunkType string
	var blob []byte
	var createdAt, updatedAt int64
	if err := rows.Scan(
		&c.ID, &c.SourceID, &c.Ordinal, &c.Content, &c.StartPos, &c.EndPos, &c.TokenCount, &chunkType,
		&c.HeaderPath, &c.BatchID, &c.BatchIndex, &c.BatchTotal, &blob, &createdAt, &updatedAt,
	); err != nil {
		return nil, nil, wrapSQLiteErr(err, "scan chunk")
	}
	c.ChunkType = ChunkType(chunkType)
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, blob, nil
}

// GetAdjacentChunks returns the chunks immediately before and after chunkID
// within its source, for read-time context expansion.
func (s *SQLiteStore) GetAdjacentChunks(ctx context.Context, chunkID string) (*Chunk, *Chunk, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	var sourceID string
	var ordinal int
	err := s.db.QueryRowContext(ctx, `SELECT source_id, ordinal FROM chunks WHERE id = ?`, chunkID).Scan(&sourceID, &ordinal)
	if err == sql.ErrNoRows {
		return nil, nil, errors.InvalidInput(errors.ErrCodeMalformedDocument, "chunk not found: "+chunkID)
	}
	if err != nil {
		return nil, nil, wrapSQLiteErr(err, "lookup chunk for adjacency")
	}

	prev, err := s.getChunkByOrdinal(ctx, sourceID, ordinal-1)
	if err != nil {
		return nil, nil, err
	}
	next, err := s.getChunkByOrdinal(ctx, sourceID, ordinal+1)
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

func (s *SQLiteStore) getChunkByOrdinal(ctx context.Context, sourceID string, ordinal int) (*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, ordinal, content, start_pos, end_pos, token_count, chunk_type, header_path, batch_id, batch_index, batch_total, embedding, created_at, updated_at
		FROM chunks WHERE source_id = ? AND ordinal = ?
	`, sourceID, ordinal)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query adjacent chunk")
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// GetSourceStats reports the chunk count and total content byte size for a
// source.
func (s *SQLiteStore) GetSourceStats(ctx context.Context, sourceID string) (*SourceStats, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	stats := &SourceStats{SourceID: sourceID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM chunks WHERE source_id = ?`, sourceID,
	).Scan(&stats.ChunkCount, &stats.TotalBytes)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query source stats")
	}
	return stats, nil
}

// GetAllChunkIDsAndContents streams every chunk's ID and content, used to
// rebuild the BM25 index from scratch after a restart or schema repair.
func (s *SQLiteStore) GetAllChunkIDsAndContents(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM chunks`)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query all chunk contents")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, wrapSQLiteErr(err, "scan chunk content")
		}
		out[id] = content
	}
	return out, rows.Err()
}

// GetAllChunkIDsAndEmbeddings streams every chunk's ID and decoded
// embedding, used to rebuild the ANN index from scratch. A chunk with no
// embedding, or a corrupt one, is silently omitted rather than failing the
// whole rebuild.
func (s *SQLiteStore) GetAllChunkIDsAndEmbeddings(ctx context.Context) (map[string][]float32, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks`)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query all chunk embeddings")
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, wrapSQLiteErr(err, "scan chunk embedding")
		}
		if len(blob) == 0 {
			continue
		}
		emb, decErr := decodeEmbedding(blob)
		if decErr != nil {
			continue
		}
		out[id] = emb
	}
	return out, rows.Err()
}

// UpdateChunkEmbedding persists a chunk's embedding vector as a
// native-endian float32 BLOB.
func (s *SQLiteStore) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	blob := encodeEmbedding(embedding)
	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding = ?, updated_at = ? WHERE id = ?`, blob, time.Now().Unix(), chunkID)
	if err != nil {
		return wrapSQLiteErr(err, "update chunk embedding")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQLiteErr(err, "check update result")
	}
	if n == 0 {
		return errors.InvalidInput(errors.ErrCodeMalformedDocument, "chunk not found: "+chunkID)
	}
	return nil
}

// AddDoc inserts doc keyed by content hash, or returns the existing doc if
// the same content was already added.
func (s *SQLiteStore) AddDoc(ctx context.Context, doc *Doc) (*Doc, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	hash := doc.ContentHash
	if hash == "" {
		hash = contentHash(doc.Content)
		doc.ContentHash = hash
	}

	if existing, err := s.getDocByHash(ctx, hash); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if doc.ID == "" {
		doc.ID = hash
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	var blob []byte
	if len(doc.Embedding) > 0 {
		blob = encodeEmbedding(doc.Embedding)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO docs (id, content, content_hash, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Content, doc.ContentHash, blob, doc.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, wrapSQLiteErr(err, "insert doc")
	}
	return doc, nil
}

func (s *SQLiteStore) getDocByHash(ctx context.Context, hash string) (*Doc, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, content_hash, embedding, created_at FROM docs WHERE content_hash = ?`, hash)
	return scanDoc(row)
}

// GetDoc retrieves a legacy doc by ID, returning nil, nil if absent.
func (s *SQLiteStore) GetDoc(ctx context.Context, id string) (*Doc, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, content_hash, embedding, created_at FROM docs WHERE id = ?`, id)
	doc, err := scanDoc(row)
	if isNotFound(err) {
		return nil, nil
	}
	return doc, err
}

func scanDoc(row *sql.Row) (*Doc, error) {
	var doc Doc
	var blob []byte
	var createdAt int64
	if err := row.Scan(&doc.ID, &doc.Content, &doc.ContentHash, &blob, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errNotFound
		}
		return nil, wrapSQLiteErr(err, "scan doc")
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	if len(blob) > 0 {
		emb, decErr := decodeEmbedding(blob)
		if decErr != nil {
			return nil, decErr
		}
		doc.Embedding = emb
	}
	return &doc, nil
}

// GetAllDocIDsAndEmbeddings streams every legacy doc's ID and embedding, for
// the simple-RAG path's ANN rebuild.
func (s *SQLiteStore) GetAllDocIDsAndEmbeddings(ctx context.Context) (map[string][]float32, error) {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM docs`)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query all doc embeddings")
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, wrapSQLiteErr(err, "scan doc embedding")
		}
		if len(blob) == 0 {
			continue
		}
		emb, decErr := decodeEmbedding(blob)
		if decErr != nil {
			// A corrupt embedding is dropped from the rebuild set rather
			// than failing the whole pass.
			continue
		}
		out[id] = emb
	}
	return out, rows.Err()
}

// chunkIDPlaceholders builds a "?, ?, ..." placeholder list and the
// matching []any argument slice for an IN (...) clause over ids.
func chunkIDPlaceholders(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// GetChunksByIDs hydrates content and source metadata for chunkIDs in a
// single join query. IDs with no matching row (e.g. a stale ANN entry for
// a deleted chunk) are silently omitted from the result.
func (s *SQLiteStore) GetChunksByIDs(ctx context.Context, chunkIDs []string) ([]*HydratedChunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	placeholders, args := chunkIDPlaceholders(chunkIDs)
	query := fmt.Sprintf(`
		SELECT c.id, c.content, c.source_id, s.metadata, c.ordinal
		FROM chunks c JOIN sources s ON s.id = c.source_id
		WHERE c.id IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query chunks by id")
	}
	defer rows.Close()

	var out []*HydratedChunk
	for rows.Next() {
		h := &HydratedChunk{}
		if err := rows.Scan(&h.ChunkID, &h.Content, &h.SourceID, &h.Metadata, &h.Ordinal); err != nil {
			return nil, wrapSQLiteErr(err, "scan hydrated chunk")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetChunksBySourceIDs returns every chunk (with its embedding decoded)
// belonging to any of sourceIDs, for the scoped exact-scan retrieval path
// taken when a source filter narrows the candidate set.
func (s *SQLiteStore) GetChunksBySourceIDs(ctx context.Context, sourceIDs []string) ([]*Chunk, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	placeholders, args := chunkIDPlaceholders(sourceIDs)
	query := fmt.Sprintf(`
		SELECT id, source_id, ordinal, content, start_pos, end_pos, token_count, chunk_type, header_path, batch_id, batch_index, batch_total, embedding, created_at, updated_at
		FROM chunks WHERE source_id IN (%s) ORDER BY source_id, ordinal ASC
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query chunks by source")
	}
	defer rows.Close()

	return scanChunks(rows)
}

// GetSourcesByIDs fetches sources keyed by ID, for applying a
// metadata_like predicate against a candidate set.
func (s *SQLiteStore) GetSourcesByIDs(ctx context.Context, sourceIDs []string) (map[string]*Source, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	placeholders, args := chunkIDPlaceholders(sourceIDs)
	query := fmt.Sprintf(`SELECT id, uri, content_type, content, content_hash, metadata, byte_size, created_at FROM sources WHERE id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query sources by id")
	}
	defer rows.Close()

	out := make(map[string]*Source)
	for rows.Next() {
		var src Source
		var contentType string
		var createdAt int64
		if err := rows.Scan(&src.ID, &src.URI, &contentType, &src.Content, &src.ContentHash, &src.Metadata, &src.ByteSize, &createdAt); err != nil {
			return nil, wrapSQLiteErr(err, "scan source")
		}
		src.ContentType = ContentType(contentType)
		src.CreatedAt = time.Unix(createdAt, 0)
		out[src.ID] = &src
	}
	return out, rows.Err()
}

// GetDocsByIDs hydrates legacy flat docs by id, used by the simple-RAG
// hydration fallback when a candidate id isn't found among chunks.
func (s *SQLiteStore) GetDocsByIDs(ctx context.Context, docIDs []string) ([]*Doc, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	placeholders, args := chunkIDPlaceholders(docIDs)
	query := fmt.Sprintf(`SELECT id, content, content_hash, embedding, created_at FROM docs WHERE id IN (%s)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLiteErr(err, "query docs by id")
	}
	defer rows.Close()

	var out []*Doc
	for rows.Next() {
		var doc Doc
		var blob []byte
		var createdAt int64
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.ContentHash, &blob, &createdAt); err != nil {
			return nil, wrapSQLiteErr(err, "scan doc")
		}
		doc.CreatedAt = time.Unix(createdAt, 0)
		if len(blob) > 0 {
			if emb, decErr := decodeEmbedding(blob); decErr == nil {
				doc.Embedding = emb
			}
		}
		out = append(out, &doc)
	}
	return out, rows.Err()
}

// ClearAll deletes every source, chunk, and the legacy docs table.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	ctx, cancel := s.withAcquireTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQLiteErr(err, "begin clear-all transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DELETE FROM chunks`, `DELETE FROM sources`, `DELETE FROM docs`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrapSQLiteErr(err, "clear table")
		}
	}
	return tx.Commit()
}

// Close releases the connection pool, forcing a WAL checkpoint first so
// all writes are durable in the main database file.
func (s *SQLiteStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// encodeEmbedding concatenates a float32 vector as native-endian bytes.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.NativeEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding reverses encodeEmbedding, rejecting a blob whose length
// is not a multiple of 4 (a partial/corrupt write).
func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Database(errors.ErrCodeCorruptEmbedding, fmt.Sprintf("embedding blob length %d is not a multiple of 4", len(blob)), nil)
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.NativeEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

func wrapSQLiteErr(err error, action string) error {
	return errors.Database(errors.ErrCodeSQLFailure, action, err)
}
