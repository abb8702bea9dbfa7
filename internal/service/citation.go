package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type SourceKind string

const (
	SourceKindChunk  SourceKind = "chunk"
	SourceKindMemory SourceKind = "memory"
	SourceKindWeb    SourceKind = "web"
)

// Source is one numbered grounding item handed to the generator. The marker
// number the model cites is the item's 1-based position in the slice.
type Source struct {
	Kind  SourceKind
	Ref   string
	Title string
	Score float64
	Text  string
}

// Citation is one resolved reference from the generated answer back to the
// evidence it drew on.
type Citation struct {
	Marker       int        `json:"marker"`
	SourceKind   SourceKind `json:"source_kind"`
	SourceRef    string     `json:"source_ref"`
	DisplayTitle string     `json:"display_title"`
	Score        float64    `json:"score"`
	Excerpt      string     `json:"excerpt"`
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

const excerptMaxRunes = 240

// AssembleCitations resolves every [n] marker in the answer against the
// numbered sources, in order of first appearance. Markers pointing outside
// the source list are ignored, and each source is cited at most once even
// when the answer repeats its marker.
func AssembleCitations(answer string, sources []Source) []Citation {
	matches := citationMarker.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	citations := make([]Citation, 0, len(matches))
	for _, match := range matches {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(sources) {
			continue
		}
		src := sources[n-1]
		if _, ok := seen[src.Ref]; ok {
			continue
		}
		seen[src.Ref] = struct{}{}
		citations = append(citations, Citation{
			Marker:       n,
			SourceKind:   src.Kind,
			SourceRef:    src.Ref,
			DisplayTitle: src.Title,
			Score:        src.Score,
			Excerpt:      excerpt(src.Text),
		})
	}
	return citations
}

// excerpt strips markdown structure from the source text and clips it to a
// display-friendly length.
func excerpt(markdown string) string {
	plain := plainText(markdown)
	runes := []rune(plain)
	if len(runes) <= excerptMaxRunes {
		return plain
	}
	return strings.TrimSpace(string(runes[:excerptMaxRunes])) + "..."
}

func plainText(markdown string) string {
	src := []byte(markdown)
	root := goldmark.DefaultParser().Parse(text.NewReader(src))
	var sb strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}
