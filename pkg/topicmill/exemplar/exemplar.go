// Package exemplar picks representative excerpts for each topic.
package exemplar

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gonum.org/v1/gonum/mat"
)

const ellipsis = "…"

// Document is the source of one row of the document-topic matrix.
type Document struct {
	ID     string
	URL    string
	Domain string
	Title  string
	Text   string
}

// Exemplar is one excerpt chosen for a topic.
type Exemplar struct {
	Topic    int
	Document Document
	Text     string
	Score    float64
}

// Extractor selects up to PerTopic exemplars per topic, each at most
// MaxChars runes long.
type Extractor struct {
	PerTopic int
	MaxChars int
	// Key maps a word of source text into the term space; nil lowercases
	// and trims punctuation.
	Key func(word string) string
}

// Extract ranks the documents of each topic by their normalised weight and
// excerpts the best ones. docs[i] is the source of row i of docTopics and
// topicTerms[k] the terms of topic k. Documents sharing a URL (or, without
// one, an id) are used once per topic.
func (e Extractor) Extract(docTopics mat.Matrix, docs []Document, topicTerms [][]string) [][]Exemplar {
	n, k := docTopics.Dims()
	key := e.Key
	if key == nil {
		key = defaultKey
	}

	out := make([][]Exemplar, k)
	for c := 0; c < k; c++ {
		rows := make([]int, 0, n)
		for i := 0; i < n; i++ {
			if docTopics.At(i, c) > 0 {
				rows = append(rows, i)
			}
		}
		sort.SliceStable(rows, func(a, b int) bool {
			return docTopics.At(rows[a], c) > docTopics.At(rows[b], c)
		})

		var hits map[string]struct{}
		if c < len(topicTerms) {
			hits = hitSet(topicTerms[c], key)
		}
		used := make(map[string]struct{})
		for _, i := range rows {
			if len(out[c]) >= e.PerTopic {
				break
			}
			d := docs[i]
			id := d.URL
			if id == "" {
				id = d.ID
			}
			if _, dup := used[id]; dup {
				continue
			}
			used[id] = struct{}{}

			out[c] = append(out[c], Exemplar{
				Topic:    c,
				Document: d,
				Text:     Snippet(d.Text, e.MaxChars, func(w string) bool { _, ok := hits[key(w)]; return ok }),
				Score:    docTopics.At(i, c),
			})
		}
	}
	return out
}

// hitSet maps topic terms to the keys of the words they match. Phrase terms
// contribute each of their parts.
func hitSet(terms []string, key func(string) string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range terms {
		if !strings.Contains(t, "_") {
			set[t] = struct{}{}
			continue
		}
		for _, part := range strings.Split(t, "_") {
			if k := key(part); k != "" {
				set[k] = struct{}{}
			}
		}
	}
	return set
}

func defaultKey(word string) string {
	return strings.TrimFunc(strings.ToLower(word), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Snippet returns the window of whole words, at most maxChars runes
// including ellipses, holding the most words for which hit is true. The
// earliest window wins ties; with no hits the leading text is used.
func Snippet(text string, maxChars int, hit func(string) bool) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	full := strings.Join(words, " ")
	if maxChars <= 0 || utf8.RuneCountInString(full) <= maxChars {
		return full
	}

	// Room for an ellipsis at each cut edge.
	budget := maxChars - 2
	if budget < 1 {
		budget = 1
	}
	lens := make([]int, len(words))
	prefix := make([]int, len(words)+1)
	for i, w := range words {
		lens[i] = utf8.RuneCountInString(w)
		prefix[i+1] = prefix[i]
		if hit(w) {
			prefix[i+1]++
		}
	}

	bestStart, bestEnd, bestHits := 0, 0, -1
	end, width := 0, 0 // window is words[start:end], width in runes
	for start := range words {
		if end < start {
			end, width = start, 0
		}
		for end < len(words) {
			add := lens[end]
			if end > start {
				add++ // separating space
			}
			if width+add > budget {
				break
			}
			width += add
			end++
		}
		if end > start {
			if h := prefix[end] - prefix[start]; h > bestHits {
				bestStart, bestEnd, bestHits = start, end, h
			}
		}
		if end > start {
			width -= lens[start]
			if end > start+1 {
				width-- // space after the dropped word
			}
		}
	}
	if bestHits <= 0 {
		bestStart, bestEnd = 0, 0
		for w := 0; bestEnd < len(words); bestEnd++ {
			add := lens[bestEnd]
			if bestEnd > 0 {
				add++
			}
			if w+add > budget {
				break
			}
			w += add
		}
	}
	if bestEnd == bestStart {
		// A single word longer than the budget.
		r := []rune(words[bestStart])
		return string(r[:budget]) + ellipsis
	}

	var b strings.Builder
	if bestStart > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(strings.Join(words[bestStart:bestEnd], " "))
	if bestEnd < len(words) {
		b.WriteString(ellipsis)
	}
	return b.String()
}
