package memory

import (
	"strings"
)

// Markers for self-contained first-person statements. Detection is a fixed
// heuristic rather than a model call so a curator replay of the same turn
// always makes the same decision.
var factMarkers = []string{
	"i am ",
	"i'm ",
	"my name is ",
	"i live ",
	"i work ",
	"i have ",
	"i like ",
	"i prefer ",
	"i use ",
	"we use ",
	"my favorite ",
	"my birthday ",
}

// extractFact returns the first sentence of the user message that states a
// fact about the user, or "" when the message carries none.
func extractFact(message string) string {
	for _, sentence := range splitSentences(message) {
		lower := strings.ToLower(sentence)
		for _, marker := range factMarkers {
			if !strings.Contains(lower, marker) {
				continue
			}
			if len(strings.Fields(sentence)) < 3 {
				continue
			}
			return strings.TrimSpace(sentence)
		}
	}
	return ""
}

func splitSentences(input string) []string {
	var sentences []string
	var sb strings.Builder
	for _, r := range input {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(sb.String()); s != "" {
				sentences = append(sentences, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
