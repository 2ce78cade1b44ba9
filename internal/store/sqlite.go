package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/index"
	"shopilots.com/chatbot/internal/utils"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dataSourceName string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	// lets the server keep reading while the indexer writes
	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("could not enable WAL journal", "error", err)
	}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS index_manifest (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        embedding_model TEXT NOT NULL,
        dimension INTEGER NOT NULL,
        chunk_size INTEGER NOT NULL,
        chunk_overlap INTEGER NOT NULL,
        chunk_count INTEGER NOT NULL,
        built_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chunks (
        seq INTEGER PRIMARY KEY, -- insertion order, used for tie-breaking
        chunk_id TEXT UNIQUE NOT NULL,
        source_id TEXT NOT NULL,
        text TEXT NOT NULL,
        position INTEGER NOT NULL,
        chunk_index INTEGER NOT NULL,
        metadata_json TEXT,
        embedding BLOB NOT NULL -- little-endian float32
    );

    CREATE TABLE IF NOT EXISTS analytics_events (
        id TEXT PRIMARY KEY, -- UUID
        timestamp DATETIME NOT NULL,
        session_id TEXT NOT NULL,
        question TEXT NOT NULL,
        matched_category TEXT,
        fallback_reason TEXT,
        model_used TEXT NOT NULL,
        latency_ms INTEGER NOT NULL,
        docs_retrieved INTEGER NOT NULL,
        answer_length INTEGER NOT NULL,
        completed BOOLEAN NOT NULL,
        error TEXT
    );

    CREATE INDEX IF NOT EXISTS idx_analytics_events_timestamp ON analytics_events (timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// ReplaceIndex swaps the persisted index for ix in one transaction. If anything
// fails the previous index is left as it was.
func (s *SQLiteStore) ReplaceIndex(ctx context.Context, ix *index.Index) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("failed to roll back index replacement", "error", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM index_manifest"); err != nil {
		return fmt.Errorf("failed to clear manifest: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
        (seq, chunk_id, source_id, text, position, chunk_index, metadata_json, embedding)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < ix.Len(); i++ {
		c := ix.Chunk(i)
		var metadataJSON []byte
		if metadataJSON, err = json.Marshal(c.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata for chunk %s: %w", c.ID, err)
		}
		_, err = stmt.ExecContext(ctx, i, c.ID, c.SourceID, c.Text, c.Position, c.Index,
			string(metadataJSON), utils.FloatsToBytes(ix.Vector(i)))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	m := ix.Manifest()
	_, err = tx.ExecContext(ctx, `INSERT INTO index_manifest
        (id, embedding_model, dimension, chunk_size, chunk_overlap, chunk_count, built_at)
        VALUES (1, ?, ?, ?, ?, ?, ?)`,
		m.EmbeddingModel, m.Dimension, m.ChunkSize, m.ChunkOverlap, m.ChunkCount, m.BuiltAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert manifest: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// LoadManifest returns the manifest of the persisted index.
func (s *SQLiteStore) LoadManifest(ctx context.Context) (index.Manifest, error) {
	var m index.Manifest
	err := s.db.QueryRowContext(ctx, `SELECT embedding_model, dimension, chunk_size, chunk_overlap, chunk_count, built_at
        FROM index_manifest WHERE id = 1`).
		Scan(&m.EmbeddingModel, &m.Dimension, &m.ChunkSize, &m.ChunkOverlap, &m.ChunkCount, &m.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("%w: no index has been built", domain.ErrIndexUnavailable)
	}
	if err != nil {
		return m, fmt.Errorf("%w: failed to read manifest: %v", domain.ErrIndexUnavailable, err)
	}
	return m, nil
}

// LoadIndex reads the persisted index. A missing, incomplete or corrupt index is
// reported as domain.ErrIndexUnavailable.
func (s *SQLiteStore) LoadIndex(ctx context.Context) (*index.Index, error) {
	m, err := s.LoadManifest(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, source_id, text, position, chunk_index, metadata_json, embedding
        FROM chunks ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chunks: %v", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0, m.ChunkCount)
	vectors := make([][]float32, 0, m.ChunkCount)
	for rows.Next() {
		var c domain.Chunk
		var metadataJSON sql.NullString
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Text, &c.Position, &c.Index, &metadataJSON, &blob); err != nil {
			return nil, fmt.Errorf("%w: failed to scan chunk: %v", domain.ErrIndexUnavailable, err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &c.Metadata); err != nil {
				return nil, fmt.Errorf("%w: bad metadata for chunk %s: %v", domain.ErrIndexUnavailable, c.ID, err)
			}
		}
		vec, err := utils.BytesToFloats(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", domain.ErrIndexUnavailable, c.ID, err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if len(chunks) != m.ChunkCount {
		return nil, fmt.Errorf("%w: manifest lists %d chunks, found %d", domain.ErrIndexUnavailable, m.ChunkCount, len(chunks))
	}

	return index.New(m, chunks, vectors)
}
