package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/carebot/carebot/internal/log"
)

// Store persists documents and chunk embeddings in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a document store on the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Create inserts a document and its chunk embeddings in one transaction.
// chunks and embeddings must be the same length, in chunk-index order.
func (s *Store) Create(ctx context.Context, title, content string, chunks []string, embeddings [][]float32) (*Document, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	doc := &Document{ID: uuid.New(), Title: title, Content: content}
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (id, title, content)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		doc.ID, title, content,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	if err := insertChunks(ctx, tx, doc.ID, chunks, embeddings); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info("document created", "document_id", doc.ID, "chunks", len(chunks))
	return doc, nil
}

// Update replaces a document's title, content, and all of its chunks in one
// transaction. Returns ErrNotFound if the document does not exist.
func (s *Store) Update(ctx context.Context, id uuid.UUID, title, content string, chunks []string, embeddings [][]float32) (*Document, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	doc := &Document{ID: id, Title: title, Content: content}
	err = tx.QueryRow(ctx, `
		UPDATE documents
		SET title = $2, content = $3, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		id, title, content,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}

	if err := insertChunks(ctx, tx, id, chunks, embeddings); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info("document updated", "document_id", id, "chunks", len(chunks))
	return doc, nil
}

func insertChunks(ctx context.Context, tx pgx.Tx, docID uuid.UUID, chunks []string, embeddings [][]float32) error {
	for i, chunk := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4)`,
			docID, i, chunk, pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// Get returns one document by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc := &Document{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT title, content, created_at, updated_at
		FROM documents
		WHERE id = $1`,
		id,
	).Scan(&doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return doc, nil
}

// List returns documents newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, content, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document and (via cascade) its chunks.
// Returns ErrNotFound if the document does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("document deleted", "document_id", id)
	return nil
}

// Search returns the k chunks nearest to the query embedding by cosine
// distance. Ties break deterministically on (document_id, chunk_index).
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]Retrieved, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, embedding <=> $1 AS distance
		FROM document_chunks
		ORDER BY distance, document_id, chunk_index
		LIMIT $2`,
		pgvector.NewVector(embedding), k,
	)
	if err != nil {
		return nil, fmt.Errorf("query nearest chunks: %w", err)
	}
	defer rows.Close()

	var results []Retrieved
	for rows.Next() {
		var r Retrieved
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Index, &r.Content, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
