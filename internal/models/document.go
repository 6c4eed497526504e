// Package models defines core data structures for documents, fragments, queries, and search results.
package models

import "time"

// Status is the vectorization state of a Document.
type Status string

const (
	// StatusPending is the state between the blob being saved and the pipeline finishing.
	StatusPending Status = "pending"
	// StatusCompleted means every fragment is embedded and stored.
	StatusCompleted Status = "completed"
	// StatusFailed means no usable text was found; the document owns no fragments.
	StatusFailed Status = "failed"
)

// Terminal reports whether s is an end state of the ingestion pipeline.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is one ingested source unit.
type Document struct {
	ID                 string    `json:"id" db:"id"`
	Filename           string    `json:"filename" db:"filename"`
	OriginalFilename   string    `json:"original_filename" db:"original_filename"`
	StoragePath        string    `json:"-" db:"storage_path"`
	FileSize           int64     `json:"file_size" db:"file_size"`
	ContentType        string    `json:"content_type" db:"content_type"`
	SourceURL          string    `json:"source_url,omitempty" db:"source_url"`
	UserID             *string   `json:"user_id,omitempty" db:"user_id"`
	Status             Status    `json:"vectorization_status" db:"vectorization_status"`
	VectorizationError string    `json:"vectorization_error,omitempty" db:"vectorization_error"`
	ChunksCount        int       `json:"chunks_count" db:"chunks_count"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Fragment is one chunk of a document's text, the unit of embedding and retrieval.
type Fragment struct {
	ID             string    `json:"id" db:"id"`
	DocumentID     string    `json:"document_id" db:"document_id"`
	ChunkIndex     int       `json:"chunk_index" db:"chunk_index"`
	Text           string    `json:"text" db:"text_content"`
	CharacterCount int       `json:"character_count" db:"character_count"`
	VectorID       string    `json:"vector_id" db:"vector_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// DocumentDetail is a document together with its fragments.
type DocumentDetail struct {
	*Document
	Fragments []*Fragment `json:"fragments"`
}
