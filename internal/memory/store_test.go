package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type fakeEntryStore struct {
	entries []model.MemoryEntry
	inserts []model.MemoryEntry
	origins map[int64]bool
	err     error
}

func (f *fakeEntryStore) Insert(ctx context.Context, entry *model.MemoryEntry) error {
	if f.err != nil {
		return f.err
	}
	if f.origins == nil {
		f.origins = make(map[int64]bool)
	}
	if f.origins[entry.OriginMessageID] {
		return appErr.ErrConflict
	}
	f.origins[entry.OriginMessageID] = true
	f.inserts = append(f.inserts, *entry)
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeEntryStore) ListForChat(ctx context.Context, chatID string) ([]model.MemoryEntry, error) {
	return f.entries, f.err
}

func (f *fakeEntryStore) ExistsByOrigin(ctx context.Context, chatID string, originMessageID int64) (bool, error) {
	return f.origins[originMessageID], nil
}

type fakeSummaryStore struct {
	summary  *model.ChatSummary
	casCalls int
	// conflictUntil forces ErrMemoryConflict for the first N CAS calls, and
	// advanceOnConflict simulates the concurrent writer that won the race.
	conflictUntil     int
	advanceOnConflict *model.ChatSummary
}

func (f *fakeSummaryStore) Get(ctx context.Context, chatID string) (*model.ChatSummary, error) {
	if f.summary == nil {
		return nil, appErr.ErrNotFound
	}
	clone := *f.summary
	return &clone, nil
}

func (f *fakeSummaryStore) CompareAndSwap(ctx context.Context, summary *model.ChatSummary, expectedCoversUpTo int64) error {
	f.casCalls++
	if f.casCalls <= f.conflictUntil {
		if f.advanceOnConflict != nil {
			clone := *f.advanceOnConflict
			f.summary = &clone
		}
		return appErr.ErrMemoryConflict
	}
	var current int64
	if f.summary != nil {
		current = f.summary.CoversUpToMessageID
	}
	if current != expectedCoversUpTo {
		return appErr.ErrMemoryConflict
	}
	clone := *summary
	f.summary = &clone
	return nil
}

func TestStore_FetchRanksByVectorScore(t *testing.T) {
	entries := &fakeEntryStore{entries: []model.MemoryEntry{
		{ID: "m1", Text: "likes tea", Embedding: []float32{0, 1}, Ctime: 1},
		{ID: "m2", Text: "works remotely", Embedding: []float32{1, 0}, Ctime: 2},
		{ID: "m3", Text: "lives in Oslo", Embedding: []float32{0.7, 0.7}, Ctime: 3},
	}}
	store := NewStore(entries, &fakeSummaryStore{}, 2)

	snap, err := store.Fetch(context.Background(), "chat1", []float32{1, 0})
	require.NoError(t, err)
	require.Nil(t, snap.Summary)
	require.Len(t, snap.Memories, 2)
	require.Equal(t, "m2", snap.Memories[0].Entry.ID)
	require.Equal(t, "m3", snap.Memories[1].Entry.ID)
}

func TestStore_FetchDropsSupersededEntries(t *testing.T) {
	entries := &fakeEntryStore{entries: []model.MemoryEntry{
		{ID: "old", Text: "lives in Paris", Embedding: []float32{1, 0}, Ctime: 1},
		{ID: "new", Text: "lives in Oslo", Embedding: []float32{1, 0}, Ctime: 2, SupersedesID: "old"},
	}}
	store := NewStore(entries, &fakeSummaryStore{}, 5)

	snap, err := store.Fetch(context.Background(), "chat1", []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, snap.Memories, 1)
	require.Equal(t, "new", snap.Memories[0].Entry.ID)
}

func TestStore_FetchIncludesSummary(t *testing.T) {
	summaries := &fakeSummaryStore{summary: &model.ChatSummary{
		ChatID:              "chat1",
		SummaryText:         "user asked about cats",
		CoversUpToMessageID: 4,
	}}
	store := NewStore(&fakeEntryStore{}, summaries, 5)

	snap, err := store.Fetch(context.Background(), "chat1", []float32{1, 0})
	require.NoError(t, err)
	require.NotNil(t, snap.Summary)
	require.Equal(t, "user asked about cats", snap.Summary.SummaryText)
	require.Empty(t, snap.Memories)
}
