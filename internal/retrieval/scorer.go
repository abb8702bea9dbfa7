package retrieval

import (
	"math"
	"strings"
	"unicode"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "what": {}, "with": {},
}

// CosineSimilarity computes the cosine of the angle between two equal-length
// vectors. Vectors of different lengths are a contract violation.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, appErr.ErrDimensionMismatch
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// VectorScore maps cosine similarity into [0,1] so it can be fused with the
// lexical score. Anti-correlated vectors score 0.
func VectorScore(query, chunk []float32) (float64, error) {
	cos, err := CosineSimilarity(query, chunk)
	if err != nil {
		return 0, err
	}
	if cos < 0 {
		return 0, nil
	}
	if cos > 1 {
		return 1, nil
	}
	return cos, nil
}

// LexicalScore computes a case-insensitive token overlap ratio between the
// query and a chunk text, in [0,1]. Stopwords in the query are ignored so
// short questions do not match on filler words alone.
func LexicalScore(query, text string) float64 {
	queryTokens := filterStopwords(tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}
	chunkTokens := tokenize(text)
	if len(chunkTokens) == 0 {
		return 0
	}
	chunkSet := make(map[string]struct{}, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkSet[token] = struct{}{}
	}
	var matched int
	for _, token := range queryTokens {
		if _, ok := chunkSet[token]; ok {
			matched++
			continue
		}
		// Singular/plural leniency: "cat" should hit "cats" and vice versa.
		if _, ok := chunkSet[token+"s"]; ok {
			matched++
			continue
		}
		if strings.HasSuffix(token, "s") {
			if _, ok := chunkSet[strings.TrimSuffix(token, "s")]; ok {
				matched++
			}
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func tokenize(input string) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(input) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Fields(sb.String())
}

func filterStopwords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := lexicalStopwords[token]; ok {
			continue
		}
		out = append(out, token)
	}
	return out
}
