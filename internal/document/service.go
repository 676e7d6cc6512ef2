package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/carebot/carebot/internal/ai"
	"github.com/carebot/carebot/internal/log"
)

// Service combines chunking, embedding, and storage into the document
// ingestion pipeline. Reads pass through to the store.
type Service struct {
	store    *Store
	embedder ai.Embedder
	size     int
	overlap  int
	logger   log.Logger
}

// NewService creates the ingestion pipeline. size and overlap configure the
// chunker; zero values select the defaults.
func NewService(store *Store, embedder ai.Embedder, size, overlap int, logger log.Logger) *Service {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	return &Service{store: store, embedder: embedder, size: size, overlap: overlap, logger: logger}
}

// Ingest chunks and embeds content, then persists the document atomically.
func (s *Service) Ingest(ctx context.Context, title, content string) (*Document, error) {
	chunks, embeddings, err := s.prepare(ctx, content)
	if err != nil {
		return nil, err
	}
	return s.store.Create(ctx, title, content, chunks, embeddings)
}

// Reingest replaces an existing document's content and all derived chunks.
func (s *Service) Reingest(ctx context.Context, id uuid.UUID, title, content string) (*Document, error) {
	chunks, embeddings, err := s.prepare(ctx, content)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, id, title, content, chunks, embeddings)
}

func (s *Service) prepare(ctx context.Context, content string) ([]string, [][]float32, error) {
	chunks := Split(content, s.size, s.overlap)
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	embeddings, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	s.logger.Debug("content chunked", "chunks", len(chunks))
	return chunks, embeddings, nil
}

// Retrieve embeds the query and returns the k nearest chunks.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]Retrieved, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	return s.store.Search(ctx, vectors[0], k)
}

// Get returns one document by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.store.Get(ctx, id)
}

// List returns documents newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Document, error) {
	return s.store.List(ctx, limit, offset)
}

// Delete removes a document and its chunks.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}
