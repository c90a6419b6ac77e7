package dto

import (
	"time"

	"github.com/google/uuid"
)

type IngestDocumentRequest struct {
	Filename string              `json:"filename" validate:"required"`
	Category string              `json:"category,omitempty"`
	Chunks   []IngestChunkInput  `json:"chunks" validate:"required,min=1,dive"`
}

// IngestChunkInput arrives with embeddings already computed by the
// out-of-process ingestion pipeline.
type IngestChunkInput struct {
	Content   string            `json:"content" validate:"required"`
	Embedding []float32         `json:"embedding" validate:"required"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type DocumentResponse struct {
	Id         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	Category   string    `json:"category,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type CategoryChunksResponse struct {
	Category string               `json:"category"`
	Chunks   []CategoryChunkEntry `json:"chunks"`
}

type CategoryChunkEntry struct {
	Id         uuid.UUID `json:"id"`
	DocumentId uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
}
