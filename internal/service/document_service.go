package service

import (
	"context"
	"fmt"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/dto"
	"ai-knowledge-be/internal/entity"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/internal/repository/contract"
	"ai-knowledge-be/pkg/events"
	"ai-knowledge-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IDocumentService interface {
	Ingest(ctx context.Context, request *dto.IngestDocumentRequest) (*dto.DocumentResponse, error)
	List(ctx context.Context) ([]*dto.DocumentResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ChunksByCategory(ctx context.Context, category string, limit int) (*dto.CategoryChunksResponse, error)
}

type documentService struct {
	documentRepo   contract.DocumentRepository
	chunkRepo      contract.DocumentChunkRepository
	eventPublisher *nats.Publisher
	log            logger.ILogger
}

func NewDocumentService(
	documentRepo contract.DocumentRepository,
	chunkRepo contract.DocumentChunkRepository,
	eventPublisher *nats.Publisher,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		documentRepo:   documentRepo,
		chunkRepo:      chunkRepo,
		eventPublisher: eventPublisher,
		log:            log,
	}
}

// Ingest stores a document whose chunks already carry embeddings computed
// by the out-of-process ingestion pipeline.
func (s *documentService) Ingest(ctx context.Context, request *dto.IngestDocumentRequest) (*dto.DocumentResponse, error) {
	if request.Category != "" && !constant.IsValidCategory(request.Category) {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown category: %s", request.Category))
	}

	document := &entity.Document{
		Id:       uuid.New(),
		Filename: request.Filename,
		Category: request.Category,
	}

	chunks := make([]*entity.DocumentChunk, 0, len(request.Chunks))
	for i, in := range request.Chunks {
		chunks = append(chunks, &entity.DocumentChunk{
			Id:         uuid.New(),
			DocumentId: document.Id,
			Content:    in.Content,
			Category:   request.Category,
			Metadata:   in.Metadata,
			Embedding:  in.Embedding,
			ChunkIndex: i,
		})
	}

	if err := s.documentRepo.Create(ctx, document); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.chunkRepo.CreateBulk(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	if s.eventPublisher != nil {
		evt := events.NewDocumentIngestedEvent(document.Id.String(), document.Filename, document.Category, len(chunks))
		if err := s.eventPublisher.Publish(ctx, evt); err != nil {
			s.log.Warn("document_service", "ingest event publish failed", map[string]interface{}{
				"document_id": document.Id.String(),
				"error":       err.Error(),
			})
		}
	}

	s.log.Info("document_service", "document ingested", map[string]interface{}{
		"document_id": document.Id.String(),
		"filename":    document.Filename,
		"category":    document.Category,
		"chunks":      len(chunks),
	})

	return &dto.DocumentResponse{
		Id:         document.Id,
		Filename:   document.Filename,
		Category:   document.Category,
		ChunkCount: len(chunks),
		CreatedAt:  document.CreatedAt,
	}, nil
}

func (s *documentService) List(ctx context.Context) ([]*dto.DocumentResponse, error) {
	documents, err := s.documentRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.DocumentResponse, 0, len(documents))
	for _, doc := range documents {
		responses = append(responses, &dto.DocumentResponse{
			Id:         doc.Id,
			Filename:   doc.Filename,
			Category:   doc.Category,
			ChunkCount: len(doc.Chunks),
			CreatedAt:  doc.CreatedAt,
		})
	}
	return responses, nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.chunkRepo.DeleteByDocumentId(ctx, id); err != nil {
		return err
	}
	return s.documentRepo.Delete(ctx, id)
}

func (s *documentService) ChunksByCategory(ctx context.Context, category string, limit int) (*dto.CategoryChunksResponse, error) {
	if !constant.IsValidCategory(category) {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown category: %s", category))
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	chunks, err := s.chunkRepo.FindByCategory(ctx, category, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]dto.CategoryChunkEntry, 0, len(chunks))
	for _, c := range chunks {
		entries = append(entries, dto.CategoryChunkEntry{
			Id:         c.Id,
			DocumentId: c.DocumentId,
			Content:    c.Content,
		})
	}
	return &dto.CategoryChunksResponse{Category: category, Chunks: entries}, nil
}
