package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kbase/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
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
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		user_id TEXT,
		vectorization_status TEXT NOT NULL DEFAULT 'pending',
		vectorization_error TEXT NOT NULL DEFAULT '',
		chunks_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(vectorization_status);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text_content TEXT NOT NULL,
		character_count INTEGER NOT NULL,
		vector_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON document_chunks(document_id);

	CREATE TABLE IF NOT EXISTS search_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_text TEXT NOT NULL,
		results_count INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		min_score REAL,
		max_score REAL,
		filters_applied TEXT NOT NULL DEFAULT '',
		search_timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const documentColumns = `id, filename, original_filename, storage_path, file_size, content_type,
	source_url, user_id, vectorization_status, vectorization_error, chunks_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var userID sql.NullString
	var status string
	err := row.Scan(&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.StoragePath, &doc.FileSize,
		&doc.ContentType, &doc.SourceURL, &userID, &status, &doc.VectorizationError, &doc.ChunksCount,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = models.Status(status)
	if userID.Valid {
		doc.UserID = &userID.String
	}
	return &doc, nil
}

// CreateDocument inserts a document. Status defaults to pending.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}

	var userID interface{}
	if doc.UserID != nil {
		userID = *doc.UserID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.OriginalFilename, doc.StoragePath, doc.FileSize, doc.ContentType,
		doc.SourceURL, userID, string(doc.Status), doc.VectorizationError, doc.ChunksCount,
		doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocuments returns the documents with the given IDs keyed by ID. Missing IDs are absent from the map.
func (s *SQLiteStorage) GetDocuments(ctx context.Context, ids []string) (map[string]*models.Document, error) {
	out := make(map[string]*models.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	return out, rows.Err()
}

// ListDocuments returns documents newest first with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its fragments in one transaction.
// Deleting a missing document is not an error.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

// checkPending returns ErrNotFound or ErrNotPending unless the document is pending.
func checkPending(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT vectorization_status FROM documents WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if models.Status(status) != models.StatusPending {
		return fmt.Errorf("document %s is %s: %w", id, status, ErrNotPending)
	}
	return nil
}

// CompleteDocument inserts the fragments and marks the document completed with
// chunks_count set to len(fragments), all in one transaction.
func (s *SQLiteStorage) CompleteDocument(ctx context.Context, id string, fragments []*models.Fragment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkPending(ctx, tx, id); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, chunk_index, text_content, character_count, vector_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, f := range fragments {
		if f.DocumentID != id {
			return fmt.Errorf("fragment %d belongs to %s, not %s", f.ChunkIndex, f.DocumentID, id)
		}
		f.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, f.ID, f.DocumentID, f.ChunkIndex, f.Text, f.CharacterCount, f.VectorID, f.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert fragment %d: %w", f.ChunkIndex, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET vectorization_status = ?, vectorization_error = '', chunks_count = ?, updated_at = ?
		 WHERE id = ?`,
		string(models.StatusCompleted), len(fragments), now, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// FailDocument marks a pending document failed with reason and zero chunks.
func (s *SQLiteStorage) FailDocument(ctx context.Context, id string, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkPending(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET vectorization_status = ?, vectorization_error = ?, chunks_count = 0, updated_at = ?
		 WHERE id = ?`,
		string(models.StatusFailed), reason, time.Now(), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetFragments returns all fragments for a document ordered by chunk_index.
func (s *SQLiteStorage) GetFragments(ctx context.Context, docID string) ([]*models.Fragment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, text_content, character_count, vector_id, created_at
		 FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []*models.Fragment
	for rows.Next() {
		var f models.Fragment
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.ChunkIndex, &f.Text, &f.CharacterCount, &f.VectorID, &f.CreatedAt); err != nil {
			return nil, err
		}
		fragments = append(fragments, &f)
	}
	return fragments, rows.Err()
}

// LogSearch appends a search analytics row.
func (s *SQLiteStorage) LogSearch(ctx context.Context, entry *models.SearchLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO search_queries (query_text, results_count, response_time_ms, min_score, max_score, filters_applied, search_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.QueryText, entry.ResultsCount, entry.ResponseTimeMs, entry.MinScore, entry.MaxScore, entry.Filters, entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ListSearches returns the most recent search log entries.
func (s *SQLiteStorage) ListSearches(ctx context.Context, limit int) ([]*models.SearchLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_text, results_count, response_time_ms, min_score, max_score, filters_applied, search_timestamp
		 FROM search_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SearchLog
	for rows.Next() {
		var e models.SearchLog
		var minScore, maxScore sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.QueryText, &e.ResultsCount, &e.ResponseTimeMs, &minScore, &maxScore, &e.Filters, &e.CreatedAt); err != nil {
			return nil, err
		}
		if minScore.Valid {
			e.MinScore = &minScore.Float64
		}
		if maxScore.Valid {
			e.MaxScore = &maxScore.Float64
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountFragments returns the total number of fragments.
func (s *SQLiteStorage) CountFragments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// CountByStatus returns the number of documents in each vectorization state.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vectorization_status, COUNT(*) FROM documents GROUP BY vectorization_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[models.Status]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.Status(status)] = n
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
