package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/docchat/internal/ai"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
)

// SearchService exposes the retrieval pass standalone, without the turn
// pipeline wrapped around it.
type SearchService struct {
	retriever IRetriever
	gateway   IModelGateway
	threshold float64
}

func NewSearchService(retriever IRetriever, gateway IModelGateway, threshold float64) *SearchService {
	return &SearchService{retriever: retriever, gateway: gateway, threshold: threshold}
}

// SearchResult adds the gate verdict to the raw retrieval result so callers
// can see whether a turn with this query would have escalated.
type SearchResult struct {
	retrieval.Result
	Decision string `json:"decision"`
}

func (s *SearchService) Search(ctx context.Context, query string, scope retrieval.Scope, topK int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	embedding, err := s.gateway.Embed(ctx, query, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
	}
	result, err := s.retriever.Retrieve(ctx, retrieval.Query{
		Text:      query,
		Embedding: embedding,
		Scope:     scope,
		TopK:      topK,
	})
	if err != nil {
		return nil, err
	}
	decision := retrieval.Gate(result, s.threshold)
	return &SearchResult{Result: result, Decision: decision.String()}, nil
}
