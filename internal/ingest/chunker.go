package ingest

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

type ChunkerConfig struct {
	// MaxTokens bounds one chunk; OverlapTokens is carried into the next
	// chunk so sentences cut at a boundary stay retrievable.
	MaxTokens     int
	OverlapTokens int
}

// Chunker splits a markdown document into ordered retrieval chunks. Splitting
// follows the block structure: level 1/2 headings always start a new chunk
// and their text is prefixed to every chunk under them.
type Chunker struct {
	cfg ChunkerConfig
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.OverlapTokens <= 0 {
		cfg.OverlapTokens = 80
	}
	return &Chunker{cfg: cfg}
}

// Piece is one chunk of text before it gets an embedding and an id.
type Piece struct {
	Ordinal int
	Text    string
}

func (c *Chunker) Chunk(ctx context.Context, markdown string) []Piece {
	logger := logutil.GetLogger(ctx)
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var pieces []Piece
	var current []string
	var currentTokens int
	var currentHeading string
	ordinal := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n\n")
		if currentHeading != "" {
			content = "Heading: " + currentHeading + "\n" + content
		}
		pieces = append(pieces, Piece{Ordinal: ordinal, Text: content})
		ordinal++

		if len(current) > 1 {
			overlapTokens := 0
			var overlap []string
			for i := len(current) - 1; i >= 0; i-- {
				t := estimateTokens(current[i])
				if overlapTokens+t > c.cfg.OverlapTokens {
					break
				}
				overlapTokens += t
				overlap = append([]string{current[i]}, overlap...)
			}
			current = overlap
			currentTokens = overlapTokens
		} else {
			current = nil
			currentTokens = 0
		}
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 1 || n.Level == 2 {
				flush()
				current = nil
				currentTokens = 0
				currentHeading = string(n.Text(reader.Source()))
			} else {
				txt := string(n.Text(reader.Source()))
				current = append(current, txt)
				currentTokens += estimateTokens(txt)
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(reader.Source()))
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			block := "```" + lang + "\n" + code.String() + "\n```"
			tokens := estimateTokens(block)
			if currentTokens+tokens > c.cfg.MaxTokens {
				flush()
			}
			current = append(current, block)
			currentTokens += tokens
		default:
			txt := extractText(node, reader.Source())
			if txt == "" {
				continue
			}
			tokens := estimateTokens(txt)
			if currentTokens+tokens > c.cfg.MaxTokens {
				flush()
			}
			current = append(current, txt)
			currentTokens += tokens
		}
	}
	flush()

	logger.Debug("document chunked", zap.Int("size", len(markdown)), zap.Int("chunks", len(pieces)))
	return pieces
}

// estimateTokens counts words for ascii text and characters for the rest.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			t := node.(*ast.Text)
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
