package mapper

import (
	"encoding/json"
	"time"

	"ai-knowledge-be/internal/entity"
	"ai-knowledge-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentMapper struct{}

func NewDocumentMapper() *DocumentMapper {
	return &DocumentMapper{}
}

func (m *DocumentMapper) ToEntity(e *model.Document) *entity.Document {
	if e == nil {
		return nil
	}

	var deletedAt *time.Time
	if e.DeletedAt.Valid {
		t := e.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !e.UpdatedAt.IsZero() {
		t := e.UpdatedAt
		updatedAt = &t
	}

	chunks := make([]*entity.DocumentChunk, len(e.Chunks))
	for i := range e.Chunks {
		chunks[i] = m.ChunkToEntity(&e.Chunks[i])
	}

	return &entity.Document{
		Id:        e.Id,
		Filename:  e.Filename,
		Category:  e.Category,
		CreatedAt: e.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: e.DeletedAt.Valid,
		Chunks:    chunks,
	}
}

func (m *DocumentMapper) ToModel(e *entity.Document) *model.Document {
	if e == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if e.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *e.DeletedAt, Valid: true}
	} else if e.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if e.UpdatedAt != nil {
		updatedAt = *e.UpdatedAt
	}

	chunks := make([]model.DocumentChunk, len(e.Chunks))
	for i, c := range e.Chunks {
		chunks[i] = *m.ChunkToModel(c)
	}

	return &model.Document{
		Id:        e.Id,
		Filename:  e.Filename,
		Category:  e.Category,
		CreatedAt: e.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		Chunks:    chunks,
	}
}

func (m *DocumentMapper) ChunkToEntity(e *model.DocumentChunk) *entity.DocumentChunk {
	if e == nil {
		return nil
	}

	var deletedAt *time.Time
	if e.DeletedAt.Valid {
		t := e.DeletedAt.Time
		deletedAt = &t
	}

	metadata := map[string]string{}
	if len(e.Metadata) > 0 {
		// Malformed rows keep an empty map rather than failing the read
		_ = json.Unmarshal(e.Metadata, &metadata)
	}

	return &entity.DocumentChunk{
		Id:         e.Id,
		DocumentId: e.DocumentId,
		Content:    e.Content,
		Category:   e.Category,
		Metadata:   metadata,
		Embedding:  e.Embedding.Slice(),
		ChunkIndex: e.ChunkIndex,
		CreatedAt:  e.CreatedAt,
		DeletedAt:  deletedAt,
		IsDeleted:  e.DeletedAt.Valid,
	}
}

func (m *DocumentMapper) ChunkToModel(e *entity.DocumentChunk) *model.DocumentChunk {
	if e == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if e.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *e.DeletedAt, Valid: true}
	} else if e.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var metadata datatypes.JSON
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			metadata = raw
		}
	}

	return &model.DocumentChunk{
		Id:         e.Id,
		DocumentId: e.DocumentId,
		Content:    e.Content,
		Category:   e.Category,
		Metadata:   metadata,
		Embedding:  pgvector.NewVector(e.Embedding),
		ChunkIndex: e.ChunkIndex,
		CreatedAt:  e.CreatedAt,
		DeletedAt:  deletedAt,
	}
}

func (m *DocumentMapper) ChunksToEntities(chunks []*model.DocumentChunk) []*entity.DocumentChunk {
	entities := make([]*entity.DocumentChunk, len(chunks))
	for i, c := range chunks {
		entities[i] = m.ChunkToEntity(c)
	}
	return entities
}
