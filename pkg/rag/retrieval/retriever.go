package retrieval

import (
	"context"
	"fmt"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/entity"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/internal/repository/contract"
)

// Retriever returns ranked content chunks for a query vector.
type Retriever interface {
	// Search returns up to k chunks nearest to the query vector, best first.
	// When category is non-empty, a wider candidate set is fetched and the
	// best k matching the category are kept; chunks without a category pass
	// the filter.
	Search(ctx context.Context, queryVector []float32, k int, category string) ([]*entity.ScoredDocumentChunk, error)

	// SearchByCategory lists chunks for a category without vector ranking.
	SearchByCategory(ctx context.Context, category string, limit int) ([]*entity.DocumentChunk, error)
}

// VectorRetriever implements Retriever on top of the pgvector-backed
// chunk repository.
type VectorRetriever struct {
	chunkRepo contract.DocumentChunkRepository
	log       logger.ILogger
}

var _ Retriever = &VectorRetriever{}

func NewVectorRetriever(chunkRepo contract.DocumentChunkRepository, log logger.ILogger) *VectorRetriever {
	return &VectorRetriever{
		chunkRepo: chunkRepo,
		log:       log,
	}
}

func (r *VectorRetriever) Search(ctx context.Context, queryVector []float32, k int, category string) ([]*entity.ScoredDocumentChunk, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	// Category filtering happens after the vector cut: fetch a wider
	// candidate set, keep the best k that match.
	fetchLimit := k
	if category != "" {
		fetchLimit = constant.SearchFilteredTopK
	}

	scored, err := r.chunkRepo.SearchSimilar(ctx, queryVector, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if category == "" {
		return scored, nil
	}

	filtered := make([]*entity.ScoredDocumentChunk, 0, k)
	for _, s := range scored {
		// Uncategorized chunks are never filtered out
		if s.Chunk.Category != "" && s.Chunk.Category != category {
			continue
		}
		filtered = append(filtered, s)
		if len(filtered) == k {
			break
		}
	}

	r.log.Debug("retrieval", "filtered search results", map[string]interface{}{
		"category":   category,
		"candidates": len(scored),
		"kept":       len(filtered),
	})

	return filtered, nil
}

func (r *VectorRetriever) SearchByCategory(ctx context.Context, category string, limit int) ([]*entity.DocumentChunk, error) {
	if !constant.IsValidCategory(category) {
		return nil, fmt.Errorf("unknown category: %s", category)
	}
	return r.chunkRepo.FindByCategory(ctx, category, limit)
}
