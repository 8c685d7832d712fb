package corpus

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// textOfLen builds a distinct text of exactly n runes.
func textOfLen(seed string, n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "%s word%d ", seed, i)
	}
	return b.String()[:n]
}

func TestFilterDomainCap(t *testing.T) {
	var records []Record
	for d := 0; d < 5; d++ {
		for i := 0; i < 3; i++ {
			records = append(records, Record{
				ID:        fmt.Sprintf("d%d-%d", d, i),
				URL:       fmt.Sprintf("https://site%d.example/%d", d, i),
				Domain:    fmt.Sprintf("site%d.example", d),
				Text:      textOfLen(fmt.Sprintf("site%d doc%d", d, i), 500),
				FetchedAt: base.Add(time.Duration(10-i) * time.Minute),
			})
		}
	}

	f := Filter{MinChars: 400, MaxPerDomain: 1, Dedupe: true}
	c, stats, err := f.Apply(records)
	require.NoError(t, err)

	require.Len(t, c.Docs, 5)
	domains := map[string]string{}
	for _, d := range c.Docs {
		dom := c.Meta[d.ID].Domain
		_, dup := domains[dom]
		assert.False(t, dup, "domain %s appears twice", dom)
		domains[dom] = d.ID
	}
	// The earliest fetched document of each domain wins.
	for d := 0; d < 5; d++ {
		assert.Equal(t, fmt.Sprintf("d%d-2", d), domains[fmt.Sprintf("site%d.example", d)])
	}
	assert.Equal(t, 10, stats.DomainCapped)
	assert.Equal(t, 5, stats.Kept)
}

func TestFilterLengthFloor(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{ID: fmt.Sprintf("short-%d", i), Domain: "a.example", Text: textOfLen(fmt.Sprintf("short%d", i), 100), FetchedAt: base})
	}
	for i := 0; i < 5; i++ {
		records = append(records, Record{ID: fmt.Sprintf("long-%d", i), Domain: "b.example", Text: textOfLen(fmt.Sprintf("long%d", i), 1000), FetchedAt: base})
	}

	c, stats, err := Filter{MinChars: 400}.Apply(records)
	require.NoError(t, err)
	require.Len(t, c.Docs, 5)
	for _, d := range c.Docs {
		assert.True(t, strings.HasPrefix(d.ID, "long-"), d.ID)
	}
	assert.Equal(t, 10, stats.TooShort)
}

func TestFilterRejectsPlaceholdersAndEmpty(t *testing.T) {
	records := []Record{
		{ID: "1", Text: ""},
		{ID: "2", Text: "   \n\t "},
		{ID: "3", Text: "null"},
		{ID: "4", Text: "[ERROR]"},
		{ID: "5", Text: "Error fetching page: timeout after 30s"},
		{ID: "6", Text: "Access Denied"},
		{ID: "7", Text: "Vaccination drives reached rural clinics this spring."},
		{ID: "", Text: "no id"},
		{ID: "7", Text: "duplicate id"},
	}
	f := Filter{ErrorMarkers: []string{"[error]", "error fetching page", "access denied"}}
	c, stats, err := f.Apply(records)
	require.NoError(t, err)

	require.Len(t, c.Docs, 1)
	assert.Equal(t, "7", c.Docs[0].ID)
	assert.Equal(t, 2, stats.Empty)
	assert.Equal(t, 4, stats.ErrorMarker)
	assert.Equal(t, 2, stats.Malformed)
}

func TestFilterMarkerPrefixOnlyForShortTexts(t *testing.T) {
	long := "Access denied to public land is a recurring theme. " + textOfLen("land access", 300)
	c, _, err := Filter{ErrorMarkers: []string{"access denied"}}.Apply([]Record{{ID: "1", Text: long}})
	require.NoError(t, err)
	assert.Len(t, c.Docs, 1)
}

func TestFilterInsufficientCorpus(t *testing.T) {
	records := []Record{{ID: "1", Text: "too short"}}
	_, stats, err := Filter{MinChars: 400}.Apply(records)
	assert.ErrorIs(t, err, internalerr.ErrInsufficientCorpus)
	assert.Equal(t, 1, stats.TooShort)

	_, _, err = Filter{}.Apply(nil)
	assert.ErrorIs(t, err, internalerr.ErrInsufficientCorpus)

	_, _, err = Filter{MinDocuments: 3}.Apply([]Record{{ID: "a", Text: "one"}, {ID: "b", Text: "two"}})
	assert.ErrorIs(t, err, internalerr.ErrInsufficientCorpus)
}

func TestFilterDedupe(t *testing.T) {
	records := []Record{
		{ID: "b", Text: "Same  body text", FetchedAt: base.Add(time.Hour)},
		{ID: "a", Text: "same body TEXT", FetchedAt: base},
		{ID: "c", Text: "different body", FetchedAt: base},
	}
	c, stats, err := Filter{Dedupe: true}.Apply(records)
	require.NoError(t, err)
	require.Len(t, c.Docs, 2)
	assert.Equal(t, "a", c.Docs[0].ID)
	assert.Equal(t, "c", c.Docs[1].ID)
	assert.Equal(t, 1, stats.Duplicate)

	c, _, err = Filter{}.Apply(records)
	require.NoError(t, err)
	assert.Len(t, c.Docs, 3)
}

func TestFilterStripsHTML(t *testing.T) {
	page := `<!doctype html><html><head><title>Clinic Outreach Report</title>
<style>body{color:red}</style></head>
<body><nav>Home | About</nav><h1>Outreach</h1><p>Nurses visited &amp; vaccinated families.</p>
<script>track()</script><p>Second paragraph.</p><footer>© site</footer></body></html>`
	c, _, err := Filter{}.Apply([]Record{{ID: "1", URL: "https://www.health.example/a", Text: page}})
	require.NoError(t, err)
	require.Len(t, c.Docs, 1)

	text := c.Docs[0].Text
	assert.Contains(t, text, "Nurses visited & vaccinated families.")
	assert.Contains(t, text, "Second paragraph.")
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "<p>")

	meta := c.Meta["1"]
	assert.Equal(t, "Clinic Outreach Report", meta.Title)
	assert.Equal(t, "health.example", meta.Domain)
	assert.Equal(t, "https://www.health.example/a", meta.URL)
}

func TestFilterPlainTextTitleAndEntities(t *testing.T) {
	c, _, err := Filter{}.Apply([]Record{{ID: "1", Domain: "WWW.News.Example", Text: "Solar &amp; storage\nBody line"}})
	require.NoError(t, err)
	assert.Equal(t, "Solar & storage\nBody line", c.Docs[0].Text)
	assert.Equal(t, "Solar & storage", c.Meta["1"].Title)
	assert.Equal(t, "news.example", c.Meta["1"].Domain)
}

func TestTitleForTruncates(t *testing.T) {
	long := strings.Repeat("alpha beta ", 30)
	title := titleFor("", long)
	assert.True(t, strings.HasSuffix(title, "…"))
	assert.LessOrEqual(t, len([]rune(title)), maxTitleRunes+1)
}

func TestLoadJSONL(t *testing.T) {
	input := `{"id":"a","url":"https://x.example/1","domain":"x.example","text":"hello","fetched_at":"2026-03-01T10:00:00Z"}

not json
{"url":"https://y.example/2","text":"no id here"}
`
	records, skipped, err := LoadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.True(t, records[0].FetchedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "4", records[1].ID)
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource()
	src.Put("spring", []Record{{ID: "1", Text: "x"}})

	got, err := src.Documents(context.Background(), "spring")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = src.Documents(context.Background(), "autumn")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}
