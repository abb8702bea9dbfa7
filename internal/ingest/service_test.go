package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type fakeChunkWriter struct {
	inserted []model.Chunk
	deleted  []string
}

func (f *fakeChunkWriter) InsertBatch(ctx context.Context, chunks []model.Chunk) error {
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeChunkWriter) DeleteByDocument(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, f.err
}

func TestIngestDocument(t *testing.T) {
	writer := &fakeChunkWriter{}
	embedder := &fakeEmbedder{}
	svc := NewService(writer, embedder, NewChunker(ChunkerConfig{}))

	count, err := svc.IngestDocument(context.Background(), "doc-1", "Cats", "Cats are small mammals.\n\n# Dogs\n\nDogs are loyal.")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, []string{"doc-1"}, writer.deleted)
	require.Len(t, writer.inserted, 2)
	require.Equal(t, embedder.calls, len(writer.inserted))

	// Title becomes the leading heading context.
	require.Contains(t, writer.inserted[0].Text, "Heading: Cats")
	for i, chunk := range writer.inserted {
		require.Equal(t, "doc-1", chunk.DocumentID)
		require.Equal(t, i, chunk.OrdinalIndex)
		require.NotEmpty(t, chunk.ID)
		require.NotEmpty(t, chunk.Embedding)
	}
}

func TestIngestDocument_EmbedFailure(t *testing.T) {
	writer := &fakeChunkWriter{}
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	svc := NewService(writer, embedder, NewChunker(ChunkerConfig{}))

	_, err := svc.IngestDocument(context.Background(), "doc-1", "", "some text")
	require.True(t, errors.Is(err, appErr.ErrEmbeddingUnavailable))
	require.Empty(t, writer.deleted)
	require.Empty(t, writer.inserted)
}

func TestIngestDocument_RejectsEmptyInput(t *testing.T) {
	svc := NewService(&fakeChunkWriter{}, &fakeEmbedder{}, NewChunker(ChunkerConfig{}))
	_, err := svc.IngestDocument(context.Background(), "", "", "text")
	require.True(t, errors.Is(err, appErr.ErrInvalid))
	_, err = svc.IngestDocument(context.Background(), "doc-1", "", "   ")
	require.True(t, errors.Is(err, appErr.ErrInvalid))
}
