package entity

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	Id        uuid.UUID
	Filename  string
	Category  string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool

	Chunks []*DocumentChunk
}

// DocumentChunk is a retrievable unit of document content with a
// precomputed embedding. Immutable once stored.
type DocumentChunk struct {
	Id         uuid.UUID
	DocumentId uuid.UUID
	Content    string
	Category   string
	Metadata   map[string]string
	Embedding  []float32
	ChunkIndex int
	CreatedAt  time.Time
	DeletedAt  *time.Time
	IsDeleted  bool
}

// ScoredDocumentChunk pairs a chunk with its cosine similarity to a query.
type ScoredDocumentChunk struct {
	Chunk      *DocumentChunk
	Similarity float64
}
