package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// Embedder is the slice of the ai manager the curator needs.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

// Summarizer compresses prior summary plus new messages into one text.
type Summarizer interface {
	CompressSummary(ctx context.Context, prior string, transcript string) (string, error)
}

type CuratorConfig struct {
	// SummaryWindow is how many uncovered messages accumulate before the
	// rolling summary is regenerated.
	SummaryWindow int
	// EpisodicImportance is assigned to heuristic-extracted episodic entries.
	EpisodicImportance float64
}

// CompletedTurn is the curator's input: a turn whose answer has already been
// produced and persisted as messages.
type CompletedTurn struct {
	ChatID      string
	UserMessage model.Message
	Answer      string
}

// Curator decides what a finished turn leaves behind in long-term memory and
// when short-term history collapses into the rolling summary. Replaying the
// same turn against the same prior state writes nothing twice: episodic
// entries dedup on origin message, summaries on the coverage version.
type Curator struct {
	entries    EntryStore
	summaries  SummaryStore
	messages   MessageStore
	embedder   Embedder
	summarizer Summarizer
	cfg        CuratorConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCurator(entries EntryStore, summaries SummaryStore, messages MessageStore, embedder Embedder, summarizer Summarizer, cfg CuratorConfig) *Curator {
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = 8
	}
	if cfg.EpisodicImportance <= 0 {
		cfg.EpisodicImportance = 0.6
	}
	return &Curator{
		entries:    entries,
		summaries:  summaries,
		messages:   messages,
		embedder:   embedder,
		summarizer: summarizer,
		cfg:        cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Curate runs the full post-turn write path. Errors are returned for the
// caller to log; they never invalidate the already-produced answer.
func (c *Curator) Curate(ctx context.Context, turn CompletedTurn) error {
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", turn.ChatID))
	if err := c.curateEpisodic(ctx, turn); err != nil {
		logger.Warn("episodic memory write failed", zap.Error(err))
	}
	if err := c.refreshSummary(ctx, turn.ChatID); err != nil {
		return err
	}
	return nil
}

func (c *Curator) curateEpisodic(ctx context.Context, turn CompletedTurn) error {
	fact := extractFact(turn.UserMessage.Content)
	if fact == "" {
		return nil
	}
	exists, err := c.entries.ExistsByOrigin(ctx, turn.ChatID, turn.UserMessage.Seq)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	embedding, err := c.embedder.Embed(ctx, fact, ai.TaskTypeDocument)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}
	entry := &model.MemoryEntry{
		ID:              newID(),
		ChatID:          turn.ChatID,
		Kind:            model.MemoryKindEpisodic,
		Text:            fact,
		Embedding:       embedding,
		Importance:      c.cfg.EpisodicImportance,
		OriginMessageID: turn.UserMessage.Seq,
		Ctime:           time.Now().Unix(),
	}
	if err := c.entries.Insert(ctx, entry); err != nil {
		// A concurrent replay already wrote this origin. Fine.
		if appErr.IsConflict(err) {
			return nil
		}
		return err
	}
	logutil.GetLogger(ctx).Info("episodic memory written",
		zap.String("chat_id", turn.ChatID),
		zap.Int64("origin_seq", turn.UserMessage.Seq),
	)
	return nil
}

// refreshSummary regenerates the rolling summary once enough uncovered
// messages piled up. The summary text is generated before any lock is taken;
// only the version check and write run under the per-chat lock.
func (c *Curator) refreshSummary(ctx context.Context, chatID string) error {
	summary, err := c.summaries.Get(ctx, chatID)
	if err != nil && !appErr.IsNotFound(err) {
		return err
	}
	var prior string
	var coveredUpTo int64
	if summary != nil {
		prior = summary.SummaryText
		coveredUpTo = summary.CoversUpToMessageID
	}
	count, err := c.messages.CountAfter(ctx, chatID, coveredUpTo)
	if err != nil {
		return err
	}
	if count <= c.cfg.SummaryWindow {
		return nil
	}
	next, err := c.composeSummary(ctx, chatID, prior, coveredUpTo)
	if err != nil || next == nil {
		return err
	}

	lock := c.chatLock(chatID)
	lock.Lock()
	err = c.summaries.CompareAndSwap(ctx, next, coveredUpTo)
	lock.Unlock()
	if err == nil {
		return nil
	}
	if !errors.Is(err, appErr.ErrMemoryConflict) {
		return err
	}
	// Lost the race: a concurrent turn advanced the window. If the winner's
	// coverage already swallowed our messages, drop the write; otherwise
	// recompose from the winner's coverage point so the retry never
	// re-summarizes messages the winner already folded in, and retry once.
	current, gerr := c.summaries.Get(ctx, chatID)
	if gerr != nil {
		return gerr
	}
	if current.CoversUpToMessageID >= next.CoversUpToMessageID {
		logutil.GetLogger(ctx).Info("summary write coalesced with concurrent advance", zap.String("chat_id", chatID))
		return nil
	}
	next, err = c.composeSummary(ctx, chatID, current.SummaryText, current.CoversUpToMessageID)
	if err != nil || next == nil {
		return err
	}
	lock.Lock()
	err = c.summaries.CompareAndSwap(ctx, next, current.CoversUpToMessageID)
	lock.Unlock()
	if errors.Is(err, appErr.ErrMemoryConflict) {
		logutil.GetLogger(ctx).Warn("summary write dropped after retry", zap.String("chat_id", chatID))
		return nil
	}
	return err
}

// composeSummary compresses everything after coveredUpTo into a new summary
// version. Returns nil when there is nothing left to cover.
func (c *Curator) composeSummary(ctx context.Context, chatID string, prior string, coveredUpTo int64) (*model.ChatSummary, error) {
	count, err := c.messages.CountAfter(ctx, chatID, coveredUpTo)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	msgs, err := c.messages.ListAfter(ctx, chatID, coveredUpTo, count)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	text, err := c.summarizer.CompressSummary(ctx, prior, renderTranscript(msgs))
	if err != nil {
		return nil, fmt.Errorf("compress summary: %w", err)
	}
	return &model.ChatSummary{
		ChatID:              chatID,
		SummaryText:         text,
		CoversUpToMessageID: msgs[len(msgs)-1].Seq,
		Mtime:               time.Now().Unix(),
	}, nil
}

func (c *Curator) chatLock(chatID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[chatID] = lock
	}
	return lock
}

func renderTranscript(msgs []model.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
