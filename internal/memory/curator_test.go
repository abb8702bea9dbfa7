package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
)

type fakeMessageStore struct {
	messages []model.Message
	// listFrom records the afterSeq of every ListAfter call.
	listFrom []int64
}

func (f *fakeMessageStore) ListAfter(ctx context.Context, chatID string, afterSeq int64, limit int) ([]model.Message, error) {
	f.listFrom = append(f.listFrom, afterSeq)
	var out []model.Message
	for _, msg := range f.messages {
		if msg.Seq > afterSeq {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageStore) CountAfter(ctx context.Context, chatID string, afterSeq int64) (int, error) {
	count := 0
	for _, msg := range f.messages {
		if msg.Seq > afterSeq {
			count++
		}
	}
	return count, nil
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, nil
}

type fakeSummarizer struct {
	calls  int
	priors []string
	out    string
}

func (f *fakeSummarizer) CompressSummary(ctx context.Context, prior string, transcript string) (string, error) {
	f.calls++
	f.priors = append(f.priors, prior)
	return f.out, nil
}

func newTestCurator(entries *fakeEntryStore, summaries *fakeSummaryStore, messages *fakeMessageStore) (*Curator, *fakeEmbedder, *fakeSummarizer) {
	embedder := &fakeEmbedder{}
	summarizer := &fakeSummarizer{out: "merged summary"}
	curator := NewCurator(entries, summaries, messages, embedder, summarizer, CuratorConfig{SummaryWindow: 4})
	return curator, embedder, summarizer
}

func TestCurator_WritesEpisodicEntry(t *testing.T) {
	entries := &fakeEntryStore{}
	curator, embedder, _ := newTestCurator(entries, &fakeSummaryStore{}, &fakeMessageStore{})

	turn := CompletedTurn{
		ChatID:      "chat1",
		UserMessage: model.Message{Seq: 7, ChatID: "chat1", Role: model.RoleUser, Content: "I work as a data engineer. What is a cat?"},
		Answer:      "A cat is a small mammal.",
	}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Len(t, entries.inserts, 1)
	require.Equal(t, model.MemoryKindEpisodic, entries.inserts[0].Kind)
	require.Equal(t, "I work as a data engineer.", entries.inserts[0].Text)
	require.Equal(t, int64(7), entries.inserts[0].OriginMessageID)
	require.Equal(t, 1, embedder.calls)
}

func TestCurator_SkipsMessagesWithoutFacts(t *testing.T) {
	entries := &fakeEntryStore{}
	curator, embedder, _ := newTestCurator(entries, &fakeSummaryStore{}, &fakeMessageStore{})

	turn := CompletedTurn{
		ChatID:      "chat1",
		UserMessage: model.Message{Seq: 7, Content: "What is a cat?"},
	}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Empty(t, entries.inserts)
	require.Zero(t, embedder.calls)
}

func TestCurator_ReplayIsIdempotent(t *testing.T) {
	entries := &fakeEntryStore{}
	curator, _, _ := newTestCurator(entries, &fakeSummaryStore{}, &fakeMessageStore{})

	turn := CompletedTurn{
		ChatID:      "chat1",
		UserMessage: model.Message{Seq: 7, Content: "I live in Oslo with my dog."},
	}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Len(t, entries.inserts, 1)
}

func TestCurator_RefreshesSummaryPastWindow(t *testing.T) {
	messages := &fakeMessageStore{}
	for seq := int64(1); seq <= 6; seq++ {
		messages.messages = append(messages.messages, model.Message{Seq: seq, ChatID: "chat1", Role: model.RoleUser, Content: "msg"})
	}
	summaries := &fakeSummaryStore{}
	curator, _, summarizer := newTestCurator(&fakeEntryStore{}, summaries, messages)

	turn := CompletedTurn{ChatID: "chat1", UserMessage: model.Message{Seq: 5, Content: "hello there"}}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Equal(t, 1, summarizer.calls)
	require.NotNil(t, summaries.summary)
	require.Equal(t, "merged summary", summaries.summary.SummaryText)
	require.Equal(t, int64(6), summaries.summary.CoversUpToMessageID)
}

func TestCurator_SummaryBelowWindowUntouched(t *testing.T) {
	messages := &fakeMessageStore{messages: []model.Message{
		{Seq: 1, Content: "hi"},
		{Seq: 2, Content: "hello"},
	}}
	summaries := &fakeSummaryStore{}
	curator, _, summarizer := newTestCurator(&fakeEntryStore{}, summaries, messages)

	turn := CompletedTurn{ChatID: "chat1", UserMessage: model.Message{Seq: 1, Content: "hi"}}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Zero(t, summarizer.calls)
	require.Nil(t, summaries.summary)
}

func TestCurator_SummaryConflictRetriesWithRefreshedVersion(t *testing.T) {
	messages := &fakeMessageStore{}
	for seq := int64(1); seq <= 8; seq++ {
		messages.messages = append(messages.messages, model.Message{Seq: seq, Content: "msg"})
	}
	summaries := &fakeSummaryStore{
		summary:       &model.ChatSummary{ChatID: "chat1", SummaryText: "old", CoversUpToMessageID: 2},
		conflictUntil: 1,
	}
	curator, _, summarizer := newTestCurator(&fakeEntryStore{}, summaries, messages)

	turn := CompletedTurn{ChatID: "chat1", UserMessage: model.Message{Seq: 7, Content: "hello"}}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Equal(t, 2, summaries.casCalls)
	require.Equal(t, 2, summarizer.calls)
	require.Equal(t, "merged summary", summaries.summary.SummaryText)
	require.Equal(t, int64(8), summaries.summary.CoversUpToMessageID)
}

func TestCurator_SummaryConflictRetryCoversOnlyUncoveredMessages(t *testing.T) {
	messages := &fakeMessageStore{}
	for seq := int64(1); seq <= 8; seq++ {
		messages.messages = append(messages.messages, model.Message{Seq: seq, Content: "msg"})
	}
	// The concurrent winner advanced coverage to 5, below our target of 8.
	summaries := &fakeSummaryStore{
		summary:           &model.ChatSummary{ChatID: "chat1", SummaryText: "old", CoversUpToMessageID: 2},
		conflictUntil:     1,
		advanceOnConflict: &model.ChatSummary{ChatID: "chat1", SummaryText: "winner", CoversUpToMessageID: 5},
	}
	curator, _, summarizer := newTestCurator(&fakeEntryStore{}, summaries, messages)

	turn := CompletedTurn{ChatID: "chat1", UserMessage: model.Message{Seq: 7, Content: "hello"}}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Equal(t, 2, summaries.casCalls)
	require.Equal(t, int64(8), summaries.summary.CoversUpToMessageID)

	// The retry recomposes on top of the winner: its text is the prior, and
	// only messages past its coverage enter the transcript.
	require.Equal(t, []string{"old", "winner"}, summarizer.priors)
	require.Equal(t, []int64{2, 5}, messages.listFrom)
}

func TestCurator_SummaryConflictDropsWhenConcurrentWriterWon(t *testing.T) {
	messages := &fakeMessageStore{}
	for seq := int64(1); seq <= 8; seq++ {
		messages.messages = append(messages.messages, model.Message{Seq: seq, Content: "msg"})
	}
	summaries := &fakeSummaryStore{
		summary:           &model.ChatSummary{ChatID: "chat1", SummaryText: "old", CoversUpToMessageID: 2},
		conflictUntil:     1,
		advanceOnConflict: &model.ChatSummary{ChatID: "chat1", SummaryText: "newer", CoversUpToMessageID: 10},
	}
	curator, _, _ := newTestCurator(&fakeEntryStore{}, summaries, messages)

	turn := CompletedTurn{ChatID: "chat1", UserMessage: model.Message{Seq: 7, Content: "hello"}}
	require.NoError(t, curator.Curate(context.Background(), turn))
	require.Equal(t, 1, summaries.casCalls)
	require.Equal(t, "newer", summaries.summary.SummaryText)
	require.Equal(t, int64(10), summaries.summary.CoversUpToMessageID)
}
