package memory

import (
	"context"
	"sort"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
)

// EntryStore is the durable surface for long-term memory entries.
type EntryStore interface {
	Insert(ctx context.Context, entry *model.MemoryEntry) error
	ListForChat(ctx context.Context, chatID string) ([]model.MemoryEntry, error)
	ExistsByOrigin(ctx context.Context, chatID string, originMessageID int64) (bool, error)
}

// SummaryStore is the durable surface for the per-chat rolling summary.
type SummaryStore interface {
	Get(ctx context.Context, chatID string) (*model.ChatSummary, error)
	CompareAndSwap(ctx context.Context, summary *model.ChatSummary, expectedCoversUpTo int64) error
}

// MessageStore exposes the chat transcript the curator compresses.
type MessageStore interface {
	ListAfter(ctx context.Context, chatID string, afterSeq int64, limit int) ([]model.Message, error)
	CountAfter(ctx context.Context, chatID string, afterSeq int64) (int, error)
}

// Snapshot is what one turn reads from memory: the rolling summary (nil when
// the chat has none yet) and the top memories for the query.
type Snapshot struct {
	Summary  *model.ChatSummary
	Memories []model.ScoredMemory
}

type Store struct {
	entries   EntryStore
	summaries SummaryStore
	topK      int
}

func NewStore(entries EntryStore, summaries SummaryStore, topK int) *Store {
	return &Store{entries: entries, summaries: summaries, topK: topK}
}

// Fetch ranks the chat's memories against the query embedding with the same
// cosine scorer used for chunks. Memories and chunks are never mixed into one
// ranking pass; callers concatenate the two result sets.
func (s *Store) Fetch(ctx context.Context, chatID string, queryEmbedding []float32) (Snapshot, error) {
	var snap Snapshot
	summary, err := s.summaries.Get(ctx, chatID)
	if err != nil && !appErr.IsNotFound(err) {
		return Snapshot{}, err
	}
	snap.Summary = summary

	entries, err := s.entries.ListForChat(ctx, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	entries = dropSuperseded(entries)

	scored := make([]model.ScoredMemory, 0, len(entries))
	for _, entry := range entries {
		score, err := retrieval.VectorScore(queryEmbedding, entry.Embedding)
		if err != nil {
			return Snapshot{}, err
		}
		scored = append(scored, model.ScoredMemory{Entry: entry, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.Ctime < scored[j].Entry.Ctime
	})
	if len(scored) > s.topK {
		scored = scored[:s.topK]
	}
	snap.Memories = scored
	return snap, nil
}

// dropSuperseded hides entries that a later entry marked as revised. The
// rows themselves stay: entries are write-once.
func dropSuperseded(entries []model.MemoryEntry) []model.MemoryEntry {
	superseded := make(map[string]struct{})
	for _, entry := range entries {
		if entry.SupersedesID != "" {
			superseded[entry.SupersedesID] = struct{}{}
		}
	}
	if len(superseded) == 0 {
		return entries
	}
	out := make([]model.MemoryEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := superseded[entry.ID]; ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}
