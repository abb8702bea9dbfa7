package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	TaskTypeQuery    = "RETRIEVAL_QUERY"
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Manager is the single seam between the turn pipeline and the external
// model providers. It owns per-call timeouts so no caller blocks forever on
// an upstream service.
type Manager struct {
	completer  IGenerator
	summarizer IGenerator
	embedder   IEmbedder
	cfg        ManagerConfig
}

func NewManager(completer IGenerator, summarizer IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		completer:  completer,
		summarizer: summarizer,
		embedder:   embedder,
		cfg:        cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.embedder.Embed(ctx, text, taskType)
}

// Complete generates the answer for one turn from an already-assembled
// grounding prompt.
func (m *Manager) Complete(ctx context.Context, prompt string) (string, error) {
	if m.completer == nil {
		return "", fmt.Errorf("completer not configured")
	}
	return m.generateText(ctx, m.completer, prompt)
}

// CompressSummary folds the previous rolling summary plus the uncovered
// messages into one updated summary text.
func (m *Manager) CompressSummary(ctx context.Context, prior string, transcript string) (string, error) {
	if m.summarizer == nil {
		return "", fmt.Errorf("summarizer not configured")
	}
	if prior == "" {
		prior = "(none)"
	}
	prompt := fmt.Sprintf(`You are a conversation summarizer.
Merge the previous summary and the new messages into one concise summary (3-6 sentences).
- Keep stable facts about the user and the topics discussed.
- Drop greetings and filler.
- Output ONLY the summary text.

PREVIOUS SUMMARY:
%s

NEW MESSAGES:
%s`, prior, transcript)
	return m.generateText(ctx, m.summarizer, prompt)
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	if max := m.cfg.MaxInputChars; max > 0 && len(prompt) > max {
		prompt = prompt[:max]
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}
