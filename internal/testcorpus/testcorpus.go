// Package testcorpus builds synthetic corpora with three well separated
// themes, shared by the pipeline tests.
package testcorpus

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cognicore/topicmill/pkg/topicmill/corpus"
)

// Clusters are the theme vocabularies. Every document of a theme contains
// all of its words with varying counts.
var Clusters = [][]string{
	{"vaccine", "clinic", "nurse", "dose", "outbreak"},
	{"solar", "panel", "inverter", "grid", "battery"},
	{"stadium", "league", "coach", "season", "playoff"},
}

// Filler words appear in every document.
var Filler = []string{"report", "today", "people"}

// PerCluster is the number of documents per theme.
const PerCluster = 12

// Base is the fetch time of the first document.
var Base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// Tokens returns the token sequence of every document, theme by theme.
func Tokens() [][]string {
	var docs [][]string
	for _, words := range Clusters {
		for i := 0; i < PerCluster; i++ {
			docs = append(docs, append(themeWords(words, i), Filler...))
		}
	}
	return docs
}

func themeWords(words []string, i int) []string {
	var out []string
	for j, w := range words {
		for r := 0; r < 1+(i+2*j)%4; r++ {
			out = append(out, w)
		}
	}
	return out
}

// Records renders the corpus as harvested records. Each text carries a
// unique reference word so no two documents are identical.
func Records() []corpus.Record {
	var records []corpus.Record
	n := 0
	for c, words := range Clusters {
		for i := 0; i < PerCluster; i++ {
			text := fmt.Sprintf("%s. %s ref%02d.",
				strings.Join(themeWords(words, i), " "), strings.Join(Filler, " "), n)
			records = append(records, corpus.Record{
				ID:        fmt.Sprintf("doc-%02d", n),
				URL:       fmt.Sprintf("https://theme%d.example/story-%d", c, i),
				Domain:    fmt.Sprintf("theme%d.example", c),
				Text:      text,
				FetchedAt: Base.Add(time.Duration(n) * time.Minute),
			})
			n++
		}
	}
	return records
}

// ClusterOf returns the index of the theme containing word, or -1.
func ClusterOf(word string) int {
	for c, words := range Clusters {
		for _, w := range words {
			if w == word {
				return c
			}
		}
	}
	return -1
}

// Themes are the larger, disjoint vocabularies of the sampled corpus. Each
// extends the matching cluster.
var Themes = [][]string{
	append(append([]string(nil), Clusters[0]...), "hospital", "patient", "doctor", "surgery", "pharmacy", "therapy", "symptom"),
	append(append([]string(nil), Clusters[1]...), "turbine", "kilowatt", "rooftop", "charger", "voltage", "utility", "emissions"),
	append(append([]string(nil), Clusters[2]...), "striker", "referee", "tournament", "goalkeeper", "trophy", "roster", "fans"),
}

// Sampled corpus shape.
const (
	SampledPerTheme = 30
	SampledWords    = 40
)

// SampledTokens draws SampledWords words per document uniformly, with
// replacement, from the document's theme. Documents come theme by theme and
// the draw depends only on seed.
func SampledTokens(seed uint64) [][]string {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	var docs [][]string
	for _, words := range Themes {
		for i := 0; i < SampledPerTheme; i++ {
			doc := make([]string, SampledWords)
			for j := range doc {
				doc[j] = words[rng.IntN(len(words))]
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

// SampledRecords renders SampledTokens as harvested records.
func SampledRecords(seed uint64) []corpus.Record {
	docs := SampledTokens(seed)
	records := make([]corpus.Record, len(docs))
	for n, words := range docs {
		theme := n / SampledPerTheme
		records[n] = corpus.Record{
			ID:        fmt.Sprintf("sampled-%03d", n),
			URL:       fmt.Sprintf("https://theme%d.example/sampled-%d", theme, n),
			Domain:    fmt.Sprintf("theme%d.example", theme),
			Text:      strings.Join(words, " ") + ".",
			FetchedAt: Base.Add(time.Duration(n) * time.Minute),
		}
	}
	return records
}

// ThemeOf returns the index of the sampled theme containing word, or -1.
func ThemeOf(word string) int {
	for c, words := range Themes {
		for _, w := range words {
			if w == word {
				return c
			}
		}
	}
	return -1
}
