package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSources() []Source {
	return []Source{
		{Kind: SourceKindChunk, Ref: "chunk-1", Title: "doc-a (p.2)", Score: 0.91, Text: "Cats are **small** mammals."},
		{Kind: SourceKindMemory, Ref: "mem-1", Title: "memory: episodic", Score: 0.8, Text: "User works as a data engineer."},
		{Kind: SourceKindWeb, Ref: "https://example.com/cats", Title: "All about cats", Score: 0.5, Text: "Cats sleep most of the day."},
	}
}

func TestAssembleCitations_OrderOfFirstAppearance(t *testing.T) {
	answer := "Cats sleep a lot [3] and are small mammals [1]."
	citations := AssembleCitations(answer, testSources())
	require.Len(t, citations, 2)
	require.Equal(t, SourceKindWeb, citations[0].SourceKind)
	require.Equal(t, "https://example.com/cats", citations[0].SourceRef)
	require.Equal(t, SourceKindChunk, citations[1].SourceKind)
	require.Equal(t, "chunk-1", citations[1].SourceRef)
}

func TestAssembleCitations_DedupsRepeatedMarkers(t *testing.T) {
	answer := "Cats are mammals [1]. They are small [1] and kept as pets [1]."
	citations := AssembleCitations(answer, testSources())
	require.Len(t, citations, 1)
	require.Equal(t, "chunk-1", citations[0].SourceRef)
}

func TestAssembleCitations_IgnoresOutOfRangeMarkers(t *testing.T) {
	answer := "Claim [0] and another [4] and a valid one [2]."
	citations := AssembleCitations(answer, testSources())
	require.Len(t, citations, 1)
	require.Equal(t, "mem-1", citations[0].SourceRef)
	require.Equal(t, 2, citations[0].Marker)
}

func TestAssembleCitations_NoMarkers(t *testing.T) {
	require.Empty(t, AssembleCitations("No citations here.", testSources()))
	require.Empty(t, AssembleCitations("Marker [1] without sources.", nil))
}

func TestAssembleCitations_ExcerptStripsMarkdown(t *testing.T) {
	citations := AssembleCitations("see [1]", testSources())
	require.Len(t, citations, 1)
	require.Equal(t, "Cats are small mammals.", citations[0].Excerpt)
}

func TestExcerpt_ClipsLongText(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	clipped := excerpt(long)
	require.LessOrEqual(t, len([]rune(clipped)), excerptMaxRunes+3)
	require.Contains(t, clipped, "...")
}
