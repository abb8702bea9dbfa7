package websearch

import (
	"context"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

// ErrUnavailable is returned when the search backend cannot be reached or
// rejected the query. Callers degrade gracefully: the turn continues with
// document evidence only.
var ErrUnavailable = appErr.ErrSearchUnavailable

// Searcher is the web search fallback capability. Implementations return a
// finite, ordered list of snippets with source URLs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.WebSnippet, error)
}
