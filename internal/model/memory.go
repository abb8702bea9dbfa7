package model

const (
	MemoryKindEpisodic = "episodic"
	MemoryKindFactual  = "factual"
)

// MemoryEntry is a long-term memory record. Entries are write-once: a later
// entry may supersede an earlier one but rows are never mutated in place.
// ChatID is empty for cross-chat factual memories.
type MemoryEntry struct {
	ID              string    `json:"id"`
	ChatID          string    `json:"chat_id,omitempty"`
	Kind            string    `json:"kind"`
	Text            string    `json:"text"`
	Embedding       []float32 `json:"embedding"`
	Importance      float64   `json:"importance"`
	OriginMessageID int64     `json:"origin_message_id"`
	SupersedesID    string    `json:"supersedes_id,omitempty"`
	Ctime           int64     `json:"ctime"`
}

// ScoredMemory pairs a memory entry with its vector score for one query.
type ScoredMemory struct {
	Entry MemoryEntry `json:"entry"`
	Score float64     `json:"score"`
}

// ChatSummary is the rolling short-term summary for a chat. There is at most
// one row per chat and CoversUpToMessageID strictly increases.
type ChatSummary struct {
	ChatID              string `json:"chat_id"`
	SummaryText         string `json:"summary_text"`
	CoversUpToMessageID int64  `json:"covers_up_to_message_id"`
	Mtime               int64  `json:"mtime"`
}
