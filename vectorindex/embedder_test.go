package vectorindex

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"Query expansion improves retrieval"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, []string{"query EXPANSION improves retrieval!"})
	require.NoError(t, err)

	require.Len(t, a[0], 128)
	require.Equal(t, a[0], b[0])

	var norm float64
	for _, v := range a[0] {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(0)
	vecs, err := e.Embed(context.Background(), []string{
		"building MCP servers and clients",
		"how to build MCP servers",
		"cross-encoder reranking of documents",
	})
	require.NoError(t, err)
	require.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestHashEmbedderEmptyText(t *testing.T) {
	vecs, err := NewHashEmbedder(16).Embed(context.Background(), []string{"   "})
	require.NoError(t, err)
	require.Zero(t, cosine(vecs[0], vecs[0]))
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	require.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestChunkerSplit(t *testing.T) {
	c := NewChunker(60, 25)
	text := "First sentence here. Second sentence is longer. Third one! Is this the fourth? Fifth."

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len(chunk), 60)
	}
	// Consecutive chunks share a trailing sentence within the overlap budget.
	require.True(t, strings.Contains(chunks[1], "Second sentence is longer.") ||
		strings.HasPrefix(chunks[1], "Third one!"))
	require.True(t, strings.HasSuffix(chunks[len(chunks)-1], "Fifth."))
}

func TestChunkerLongSentenceAndEmpty(t *testing.T) {
	c := NewChunker(10, 5)
	chunks := c.Split("This single sentence is much longer than ten characters.")
	require.Len(t, chunks, 1)

	require.Empty(t, c.Split("   \n  "))
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	require.Equal(t, DefaultChunkSize, c.Size)
	require.Equal(t, DefaultChunkOverlap, c.Overlap)

	c = NewChunker(100, 100)
	require.Equal(t, 50, c.Overlap)
}

func TestLoadCatalogValidation(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader("courses:\n  - title: ''\n"))
	require.ErrorContains(t, err, "title is required")

	_, err = LoadCatalog(strings.NewReader("courses:\n  - title: A\n  - title: A\n"))
	require.ErrorContains(t, err, "duplicate title")

	_, err = LoadCatalog(strings.NewReader("courses:\n  - title: A\n    lessons:\n      - number: 1\n      - number: 1\n"))
	require.ErrorContains(t, err, "duplicate lesson 1")

	_, err = LoadCatalog(strings.NewReader("courses:\n  - title: A\n    tutor: B\n"))
	require.Error(t, err)
}
