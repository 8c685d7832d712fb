package exemplar

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSnippetShortTextIsWhole(t *testing.T) {
	got := Snippet("Solar  panels\nare cheap.", 100, func(string) bool { return false })
	assert.Equal(t, "Solar panels are cheap.", got)
}

func TestSnippetPicksDensestWindow(t *testing.T) {
	text := "the council met on tuesday to discuss parking rules and then " +
		"the new solar panel grid battery project was approved " +
		"before everyone went home for dinner afterwards"
	terms := map[string]bool{"solar": true, "panel": true, "grid": true, "battery": true}
	got := Snippet(text, 50, func(w string) bool { return terms[defaultKey(w)] })

	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.Contains(t, got, "solar panel grid battery")
	assert.True(t, strings.HasPrefix(got, ellipsis))
	assert.True(t, strings.HasSuffix(got, ellipsis))
}

func TestSnippetEarliestWindowOnTie(t *testing.T) {
	text := "alpha hit one two three four five six seven eight nine ten hit omega"
	got := Snippet(text, 20, func(w string) bool { return w == "hit" })
	assert.True(t, strings.HasPrefix(got, "alpha hit"), got)
}

func TestSnippetNoHitsUsesLeadingText(t *testing.T) {
	text := strings.Repeat("word ", 40)
	got := Snippet(text, 30, func(string) bool { return false })
	assert.True(t, strings.HasPrefix(got, "word word"))
	assert.True(t, strings.HasSuffix(got, ellipsis))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 30)
}

func TestSnippetLongSingleWord(t *testing.T) {
	got := Snippet(strings.Repeat("x", 50), 10, func(string) bool { return true })
	assert.Equal(t, strings.Repeat("x", 8)+ellipsis, got)
	assert.Equal(t, "", Snippet("   ", 10, nil))
}

func TestExtract(t *testing.T) {
	docs := []Document{
		{ID: "a", URL: "https://x.example/1", Text: "solar panel news"},
		{ID: "b", URL: "https://x.example/1", Text: "solar panel mirror"},
		{ID: "c", URL: "", Text: "public health clinic"},
		{ID: "d", URL: "", Text: "clinic opens"},
		{ID: "e", URL: "https://y.example/2", Text: "grid battery"},
	}
	dt := mat.NewDense(5, 2, []float64{
		0.9, 0.1,
		0.95, 0.05,
		0, 1,
		0.2, 0.8,
		0.7, 0.3,
	})
	ex := Extractor{PerTopic: 2, MaxChars: 100}
	got := ex.Extract(dt, docs, [][]string{{"solar", "panel"}, {"public_health", "clinic"}})
	require.Len(t, got, 2)

	// Topic 0: b outranks a but shares its URL.
	require.Len(t, got[0], 2)
	assert.Equal(t, "b", got[0][0].Document.ID)
	assert.Equal(t, "e", got[0][1].Document.ID)
	assert.Equal(t, 0.95, got[0][0].Score)

	// Topic 1: documents without URLs are keyed by id.
	require.Len(t, got[1], 2)
	assert.Equal(t, "c", got[1][0].Document.ID)
	assert.Equal(t, "d", got[1][1].Document.ID)
	assert.Equal(t, "public health clinic", got[1][0].Text)
	for _, e := range got[1] {
		assert.Equal(t, 1, e.Topic)
	}
}

func TestExtractSkipsZeroWeights(t *testing.T) {
	dt := mat.NewDense(2, 2, []float64{1, 0, 1, 0})
	docs := []Document{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}
	got := Extractor{PerTopic: 3, MaxChars: 50}.Extract(dt, docs, nil)
	assert.Len(t, got[0], 2)
	assert.Empty(t, got[1])
}

func TestExtractSkipsUnassignedDocuments(t *testing.T) {
	dt := mat.NewDense(3, 2, []float64{0, 0, 0.4, 0.6, 1, 0})
	docs := []Document{{ID: "empty", Text: "x"}, {ID: "b", Text: "y"}, {ID: "c", Text: "z"}}
	got := Extractor{PerTopic: 3, MaxChars: 50}.Extract(dt, docs, nil)
	for _, byTopic := range got {
		for _, ex := range byTopic {
			assert.NotEqual(t, "empty", ex.Document.ID)
		}
	}
	assert.Len(t, got[0], 2)
	assert.Len(t, got[1], 1)
}

func TestHitSetUsesPhraseParts(t *testing.T) {
	set := hitSet([]string{"public_health", "clinic"}, defaultKey)
	assert.Contains(t, set, "public")
	assert.Contains(t, set, "health")
	assert.Contains(t, set, "clinic")
	assert.NotContains(t, set, "public_health")
}
