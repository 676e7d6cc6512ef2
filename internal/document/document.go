// Package document manages the knowledge base: reference documents, their
// chunks, and vector similarity retrieval over the chunk embeddings.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Document is a reference text in the knowledge base.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a contiguous slice of a document's content with its embedding.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
}

// Retrieved is a chunk returned from a similarity search, annotated with its
// cosine distance to the query vector (smaller is closer).
type Retrieved struct {
	Chunk
	Distance float64 `json:"distance"`
}

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")
