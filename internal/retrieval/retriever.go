package retrieval

import (
	"context"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
)

// ChunkStore is the read surface the retriever needs from durable storage.
type ChunkStore interface {
	ListByScope(ctx context.Context, documentIDs []string) ([]model.Chunk, error)
}

// Scope restricts a retrieval pass to a chat's selected documents.
type Scope struct {
	ChatID      string
	DocumentIDs []string
}

func (s Scope) Empty() bool {
	return len(s.DocumentIDs) == 0
}

// Query is one retrieval request. Alpha weights the vector score against the
// lexical score: 1 is pure vector ranking, 0 is pure lexical ranking.
type Query struct {
	Text      string
	Embedding []float32
	Scope     Scope
	TopK      int
	Alpha     float64
}

// Result is the outcome of one retrieval pass. Confidence is the fused score
// of the top-ranked chunk, 0 when nothing was in scope.
type Result struct {
	Ranked          []model.ScoredChunk `json:"ranked"`
	Confidence      float64             `json:"confidence"`
	UsedWebFallback bool                `json:"used_web_fallback"`
}

type Config struct {
	Alpha float64
	TopK  int
}

type Retriever struct {
	chunks ChunkStore
	cfg    Config
}

func NewRetriever(chunks ChunkStore, cfg Config) *Retriever {
	return &Retriever{chunks: chunks, cfg: cfg}
}

// Retrieve scores every chunk in scope with both scorers, fuses them and
// returns the deterministic top-k ranking. An empty scope yields an empty
// ranking with confidence 0, never an error. The pass is a pure read.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (Result, error) {
	if q.Scope.Empty() {
		return Result{}, nil
	}
	// Alpha 0 on the query means unset; pure lexical ranking is configured
	// through Config.Alpha instead.
	alpha := q.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = r.cfg.Alpha
	}
	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	chunks, err := r.chunks.ListByScope(ctx, q.Scope.DocumentIDs)
	if err != nil {
		return Result{}, err
	}
	if len(chunks) == 0 {
		return Result{}, nil
	}

	scored := make([]model.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		vecScore, err := VectorScore(q.Embedding, chunk.Embedding)
		if err != nil {
			return Result{}, err
		}
		lexScore := LexicalScore(q.Text, chunk.Text)
		scored = append(scored, model.ScoredChunk{
			Chunk:        chunk,
			LexicalScore: lexScore,
			VectorScore:  vecScore,
			FusedScore:   alpha*vecScore + (1-alpha)*lexScore,
		})
	}

	// Ties break on ordinal index so identical scores rank reproducibly.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FusedScore != scored[j].FusedScore {
			return scored[i].FusedScore > scored[j].FusedScore
		}
		return scored[i].Chunk.OrdinalIndex < scored[j].Chunk.OrdinalIndex
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	logutil.GetLogger(ctx).Debug("retrieval pass",
		zap.Int("in_scope", len(chunks)),
		zap.Int("ranked", len(scored)),
		zap.Float64("alpha", alpha),
		zap.Float64("confidence", scored[0].FusedScore),
	)
	return Result{Ranked: scored, Confidence: scored[0].FusedScore}, nil
}
