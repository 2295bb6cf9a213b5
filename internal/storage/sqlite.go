package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/minaoshi/internal/corpus"
	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/vector"
)

// SQLiteStorage implements CorpusStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Rollback journal keeps the corpus in a single file between writes.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS corpus_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		index_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS corpus_index (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS corpus_embeddings (
		position INTEGER PRIMARY KEY,
		vector BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS corpus_snippets (
		position INTEGER PRIMARY KEY,
		code TEXT NOT NULL,
		file TEXT NOT NULL,
		repo TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snippets_file ON corpus_snippets(file);
	`
	_, err := db.Exec(schema)
	return err
}

// Save replaces the stored corpus in one transaction.
func (s *SQLiteStorage) Save(ctx context.Context, c *corpus.Corpus) error {
	var index bytes.Buffer
	if err := c.Index().Encode(&index); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	snippets := c.Snippets()
	embeddings := c.Embeddings()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"corpus_meta", "corpus_index", "corpus_embeddings", "corpus_snippets"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corpus_meta (id, name, dimensions, index_type, created_at) VALUES (1, ?, ?, ?, ?)`,
		c.Name(), c.Dimensions(), c.IndexType(), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO corpus_index (id, data) VALUES (1, ?)`, index.Bytes()); err != nil {
		return fmt.Errorf("failed to insert index: %w", err)
	}

	embStmt, err := tx.PrepareContext(ctx, `INSERT INTO corpus_embeddings (position, vector) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer embStmt.Close()
	for i, e := range embeddings {
		if _, err := embStmt.ExecContext(ctx, i, vector.FloatsToBytes(e)); err != nil {
			return fmt.Errorf("failed to insert embedding %d: %w", i, err)
		}
	}

	snipStmt, err := tx.PrepareContext(ctx, `INSERT INTO corpus_snippets (position, code, file, repo) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer snipStmt.Close()
	for i, sn := range snippets {
		if _, err := snipStmt.ExecContext(ctx, i, sn.Code, sn.File, sn.Repo); err != nil {
			return fmt.Errorf("failed to insert snippet %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load reads the stored corpus into an index of indexType ("" uses the stored type).
// Count, position or dimension disagreements are reported as *models.CorruptionError.
func (s *SQLiteStorage) Load(ctx context.Context, indexType string) (*corpus.Corpus, error) {
	var name, storedType string
	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT name, dimensions, index_type FROM corpus_meta WHERE id = 1`).Scan(&name, &dims, &storedType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCorpusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if indexType == "" {
		indexType = storedType
	}

	embeddings, err := s.loadEmbeddings(ctx, dims)
	if err != nil {
		return nil, err
	}
	snippets, err := s.loadSnippets(ctx)
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM corpus_index WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, corruption(-1, embeddings, snippets, "index blob missing")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	index, err := vector.NewVectorIndex(indexType, dims)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if err := index.Decode(bytes.NewReader(blob)); err != nil {
		_ = index.Close()
		return nil, corruption(-1, embeddings, snippets, "index blob: "+err.Error())
	}

	c, err := corpus.New(name, snippets, embeddings, index)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	return c, nil
}

func corruption(indexSize int, embeddings [][]float32, snippets []models.Snippet, reason string) error {
	return &models.CorruptionError{IndexSize: indexSize, Embeddings: len(embeddings), Snippets: len(snippets), Reason: reason}
}

func (s *SQLiteStorage) loadEmbeddings(ctx context.Context, dims int) ([][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, vector FROM corpus_embeddings ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out [][]float32
	for rows.Next() {
		var pos int
		var blob []byte
		if err := rows.Scan(&pos, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if pos != len(out) {
			return nil, &models.CorruptionError{IndexSize: -1, Embeddings: len(out), Reason: fmt.Sprintf("embedding position %d missing", len(out))}
		}
		v, err := vector.BytesToFloats(blob)
		if err == nil && len(v) != dims {
			err = fmt.Errorf("dimension %d, expected %d", len(v), dims)
		}
		if err != nil {
			return nil, &models.CorruptionError{IndexSize: -1, Embeddings: len(out), Reason: fmt.Sprintf("embedding %d: %v", pos, err)}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadSnippets(ctx context.Context) ([]models.Snippet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, code, file, repo FROM corpus_snippets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snippets: %w", err)
	}
	defer rows.Close()

	var out []models.Snippet
	for rows.Next() {
		var pos int
		var sn models.Snippet
		if err := rows.Scan(&pos, &sn.Code, &sn.File, &sn.Repo); err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		if pos != len(out) {
			return nil, &models.CorruptionError{IndexSize: -1, Snippets: len(out), Reason: fmt.Sprintf("snippet position %d missing", len(out))}
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// Stats reports counts for the stored corpus.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `SELECT name, dimensions, index_type, created_at FROM corpus_meta WHERE id = 1`).
		Scan(&st.Name, &st.Dimensions, &st.IndexType, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCorpusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var blobLen int
	err = s.db.QueryRowContext(ctx, `SELECT length(data) FROM corpus_index WHERE id = 1`).Scan(&blobLen)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read index size: %w", err)
	}
	if st.Dimensions > 0 && blobLen >= 8 {
		st.IndexSize = (blobLen - 8) / (st.Dimensions * 4)
	}
	queries := []struct {
		q    string
		dest *int
	}{
		{`SELECT COUNT(*) FROM corpus_embeddings`, &st.Embeddings},
		{`SELECT COUNT(*) FROM corpus_snippets`, &st.Snippets},
		{`SELECT COUNT(DISTINCT repo) FROM corpus_snippets`, &st.Repos},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.q).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// LoadFile opens the corpus file at path, loads it and closes the file.
func LoadFile(ctx context.Context, path, indexType string) (*corpus.Corpus, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("corpus file: %w", err)
	}
	s, err := NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Load(ctx, indexType)
}

// SaveFile writes c to the corpus file at path.
func SaveFile(ctx context.Context, path string, c *corpus.Corpus) error {
	s, err := NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Save(ctx, c)
}
