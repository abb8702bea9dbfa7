package model

// Chunk is one retrievable slice of an uploaded document. Chunks are
// immutable once written and are deleted only together with their document.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	OrdinalIndex int       `json:"ordinal_index"`
	Text         string    `json:"text"`
	Embedding    []float32 `json:"embedding"`
	PageNumber   *int      `json:"page_number,omitempty"`
}

// ScoredChunk is produced per query and never persisted.
type ScoredChunk struct {
	Chunk        Chunk   `json:"chunk"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	FusedScore   float64 `json:"fused_score"`
}
