package contract

import (
	"context"

	"ai-knowledge-be/internal/entity"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *entity.Document) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	FindAll(ctx context.Context) ([]*entity.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
}

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	Count(ctx context.Context) (int64, error)

	// SearchSimilar returns the chunks nearest to the query embedding by
	// cosine distance, best first, with similarity scores attached.
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]*entity.ScoredDocumentChunk, error)

	// FindByCategory returns chunks tagged with the category, newest first.
	// No vector is involved.
	FindByCategory(ctx context.Context, category string, limit int) ([]*entity.DocumentChunk, error)
}
