package ingest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// ChunkWriter is the durable surface for ingested chunks.
type ChunkWriter interface {
	InsertBatch(ctx context.Context, chunks []model.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Embedder embeds chunk text before it is stored.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

// Service turns a raw markdown document into stored, embedded chunks.
// Re-ingesting a document replaces its chunks wholesale.
type Service struct {
	chunks   ChunkWriter
	embedder Embedder
	chunker  *Chunker
}

func NewService(chunks ChunkWriter, embedder Embedder, chunker *Chunker) *Service {
	return &Service{chunks: chunks, embedder: embedder, chunker: chunker}
}

// IngestDocument chunks, embeds and stores the document text. The title, when
// present, becomes the top-level heading so untitled sections still carry
// document context. Returns the number of chunks written.
func (s *Service) IngestDocument(ctx context.Context, documentID string, title string, content string) (int, error) {
	if documentID == "" || strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("%w: document id and content are required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", documentID))

	if title = strings.TrimSpace(title); title != "" {
		content = "# " + title + "\n\n" + content
	}
	pieces := s.chunker.Chunk(ctx, content)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("%w: document produced no chunks", appErr.ErrInvalid)
	}

	chunks := make([]model.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		embedding, err := s.embedder.Embed(ctx, piece.Text, ai.TaskTypeDocument)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
		}
		chunks = append(chunks, model.Chunk{
			ID:           newChunkID(),
			DocumentID:   documentID,
			OrdinalIndex: piece.Ordinal,
			Text:         piece.Text,
			Embedding:    embedding,
		})
	}

	if err := s.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return 0, err
	}
	if err := s.chunks.InsertBatch(ctx, chunks); err != nil {
		return 0, err
	}
	logger.Info("document ingested", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// DeleteDocument removes every chunk of a document.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", appErr.ErrInvalid)
	}
	return s.chunks.DeleteByDocument(ctx, documentID)
}

func newChunkID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
