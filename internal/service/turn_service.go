package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/memory"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/websearch"
)

// IRetriever ranks document chunks for one query.
type IRetriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (retrieval.Result, error)
}

// IMemoryFetcher reads the memory snapshot a turn grounds on.
type IMemoryFetcher interface {
	Fetch(ctx context.Context, chatID string, queryEmbedding []float32) (memory.Snapshot, error)
}

// IMemoryCurator runs the post-answer memory write path.
type IMemoryCurator interface {
	Curate(ctx context.Context, turn memory.CompletedTurn) error
}

// IMessageLog is the durable transcript of a chat.
type IMessageLog interface {
	Append(ctx context.Context, chatID, role, content string) (*model.Message, error)
	ListRecent(ctx context.Context, chatID string, limit int) ([]model.Message, error)
}

// IModelGateway is the slice of the ai manager the turn pipeline uses.
type IModelGateway interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

type TurnConfig struct {
	// ConfidenceThreshold gates escalation to web search.
	ConfidenceThreshold float64
	// HistoryWindow is how many recent messages enter the prompt verbatim.
	HistoryWindow int
}

// TurnResult is everything a single turn hands back to the caller.
type TurnResult struct {
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	UsedWebFallback bool       `json:"used_web_fallback"`
}

// TurnService drives one conversational turn end to end: retrieve, gate,
// optionally search the web, fetch memory, generate, write memory, cite.
// Retrieval and generation failures abort the turn; web search and memory
// failures degrade it.
type TurnService struct {
	retriever IRetriever
	searcher  websearch.Searcher
	memories  IMemoryFetcher
	curator   IMemoryCurator
	messages  IMessageLog
	gateway   IModelGateway
	cfg       TurnConfig
}

func NewTurnService(retriever IRetriever, searcher websearch.Searcher, memories IMemoryFetcher,
	curator IMemoryCurator, messages IMessageLog, gateway IModelGateway, cfg TurnConfig) *TurnService {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	return &TurnService{
		retriever: retriever,
		searcher:  searcher,
		memories:  memories,
		curator:   curator,
		messages:  messages,
		gateway:   gateway,
		cfg:       cfg,
	}
}

func (s *TurnService) HandleTurn(ctx context.Context, chatID string, userMessage string, scope retrieval.Scope) (*TurnResult, error) {
	userMessage = strings.TrimSpace(userMessage)
	if chatID == "" || userMessage == "" {
		return nil, fmt.Errorf("%w: chat id and message are required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", chatID))

	history, err := s.messages.ListRecent(ctx, chatID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	userMsg, err := s.messages.Append(ctx, chatID, model.RoleUser, userMessage)
	if err != nil {
		return nil, err
	}

	queryEmbedding, err := s.gateway.Embed(ctx, userMessage, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
	}

	result, err := s.retriever.Retrieve(ctx, retrieval.Query{
		Text:      userMessage,
		Embedding: queryEmbedding,
		Scope:     scope,
	})
	if err != nil {
		return nil, err
	}

	// usedWeb reports that the fallback ran, even when it came back empty;
	// only a failed search leaves it unset.
	var usedWeb bool
	var snippets []model.WebSnippet
	decision := retrieval.Gate(result, s.cfg.ConfidenceThreshold)
	if decision == retrieval.DecisionEscalate && s.searcher != nil {
		snippets, err = s.searcher.Search(ctx, userMessage)
		if err != nil {
			// Degraded turn: answer from whatever evidence we have.
			logger.Warn("web search fallback failed", zap.Error(err))
			snippets = nil
		} else {
			usedWeb = true
		}
	}

	var snap memory.Snapshot
	if s.memories != nil {
		snap, err = s.memories.Fetch(ctx, chatID, queryEmbedding)
		if err != nil {
			logger.Warn("memory fetch failed", zap.Error(err))
			snap = memory.Snapshot{}
		}
	}

	sources := buildSources(result.Ranked, snap.Memories, snippets)
	prompt := buildTurnPrompt(userMessage, history, snap, sources, len(snippets) > 0)
	answer, err := s.gateway.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrCompletionUnavailable, err)
	}

	if _, err := s.messages.Append(ctx, chatID, model.RoleAssistant, answer); err != nil {
		logger.Error("persist assistant message failed", zap.Error(err))
	}

	// Memory writes run synchronously but on a detached context so a caller
	// hanging up after receiving the answer cannot abort them mid-write.
	if s.curator != nil {
		writeCtx := context.WithoutCancel(ctx)
		if err := s.curator.Curate(writeCtx, memory.CompletedTurn{
			ChatID:      chatID,
			UserMessage: *userMsg,
			Answer:      answer,
		}); err != nil {
			logger.Warn("memory curation failed", zap.Error(err))
		}
	}

	return &TurnResult{
		Answer:          answer,
		Citations:       AssembleCitations(answer, sources),
		UsedWebFallback: usedWeb,
	}, nil
}

// webSnippetScore is the sentinel relevance assigned to web results. They
// carry no embedding, so they rank below confident chunks and above noise.
const webSnippetScore = 0.5

func buildSources(chunks []model.ScoredChunk, memories []model.ScoredMemory, snippets []model.WebSnippet) []Source {
	sources := make([]Source, 0, len(chunks)+len(memories)+len(snippets))
	for _, sc := range chunks {
		title := sc.Chunk.DocumentID
		if sc.Chunk.PageNumber != nil {
			title = fmt.Sprintf("%s (p.%d)", sc.Chunk.DocumentID, *sc.Chunk.PageNumber)
		}
		sources = append(sources, Source{
			Kind:  SourceKindChunk,
			Ref:   sc.Chunk.ID,
			Title: title,
			Score: sc.FusedScore,
			Text:  sc.Chunk.Text,
		})
	}
	for _, sm := range memories {
		sources = append(sources, Source{
			Kind:  SourceKindMemory,
			Ref:   sm.Entry.ID,
			Title: "memory: " + sm.Entry.Kind,
			Score: sm.Score,
			Text:  sm.Entry.Text,
		})
	}
	for _, sn := range snippets {
		sources = append(sources, Source{
			Kind:  SourceKindWeb,
			Ref:   sn.URL,
			Title: sn.Title,
			Score: webSnippetScore,
			Text:  sn.Snippet,
		})
	}
	return sources
}

func buildTurnPrompt(question string, history []model.Message, snap memory.Snapshot, sources []Source, usedWeb bool) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant that answers strictly from the numbered context below.\n")
	sb.WriteString("Cite every claim with the matching [n] marker. If the context does not cover the question, say so.\n")
	if usedWeb {
		sb.WriteString("Some context items come from a live web search; treat them as less authoritative than documents.\n")
	}
	if snap.Summary != nil && snap.Summary.SummaryText != "" {
		sb.WriteString("\nCONVERSATION SUMMARY:\n")
		sb.WriteString(snap.Summary.SummaryText)
		sb.WriteString("\n")
	}
	if len(history) > 0 {
		sb.WriteString("\nRECENT MESSAGES:\n")
		for _, msg := range history {
			sb.WriteString(msg.Role)
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nCONTEXT:\n")
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n%s\n\n", i+1, src.Kind, src.Title, src.Text)
	}
	if len(sources) == 0 {
		sb.WriteString("(no context available)\n\n")
	}
	sb.WriteString("QUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}
