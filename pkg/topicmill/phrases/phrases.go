// Package phrases learns frequent collocations from a corpus and rewrites
// text so that they become single underscore-joined tokens.
package phrases

import (
	"sort"
	"strings"
	"unicode"
)

// Joiner glues the parts of a detected phrase.
const Joiner = "_"

// layers is the number of joining passes: bigrams, then trigrams built on
// top of bigrams.
const layers = 2

// Params controls phrase learning.
type Params struct {
	MinCount  int
	Threshold float64
	// Stopwords reports words that may never start or end a phrase.
	Stopwords func(string) bool
}

// Phrase is a learned collocation.
type Phrase struct {
	Text  string
	Count int
	Score float64
}

type pair struct {
	a, b string
}

type layer map[pair]float64

// Phraser rewrites text with learned collocations joined.
type Phraser struct {
	layers  []layer
	phrases []Phrase
}

// Learn detects collocations in texts. The result depends only on the
// texts and params.
func Learn(texts []string, p Params) *Phraser {
	if p.MinCount < 1 {
		p.MinCount = 1
	}
	if p.Stopwords == nil {
		p.Stopwords = func(string) bool { return false }
	}

	var streams [][]string
	for _, t := range texts {
		streams = append(streams, Streams(t)...)
	}

	ph := &Phraser{}
	for depth := 0; depth < layers; depth++ {
		l, found := learnLayer(streams, p, depth > 0)
		if len(l) == 0 {
			break
		}
		ph.layers = append(ph.layers, l)
		ph.phrases = append(ph.phrases, found...)
		for i, s := range streams {
			streams[i] = l.join(s)
		}
	}

	sort.Slice(ph.phrases, func(i, j int) bool {
		a, b := ph.phrases[i], ph.phrases[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Text < b.Text
	})
	return ph
}

// learnLayer scores adjacent pairs. When extend is set only pairs that grow
// an existing phrase are considered.
func learnLayer(streams [][]string, p Params, extend bool) (layer, []Phrase) {
	words := make(map[string]int)
	pairs := make(map[pair]int)
	for _, s := range streams {
		for i, w := range s {
			words[w]++
			if i > 0 {
				pairs[pair{s[i-1], w}]++
			}
		}
	}
	vocab := float64(len(words) + len(pairs))

	l := make(layer)
	var found []Phrase
	for pr, n := range pairs {
		if n < p.MinCount {
			continue
		}
		if p.Stopwords(pr.a) || p.Stopwords(pr.b) {
			continue
		}
		if extend && !isPhrase(pr.a) && !isPhrase(pr.b) {
			continue
		}
		score := float64(n-p.MinCount) / float64(words[pr.a]*words[pr.b]) * vocab
		if score <= p.Threshold {
			continue
		}
		l[pr] = score
		found = append(found, Phrase{Text: pr.a + Joiner + pr.b, Count: n, Score: score})
	}
	return l, found
}

// join merges detected pairs greedily from the left. Pairs match without
// regard to case and keep the case of the tokens.
func (l layer) join(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) {
			if _, ok := l[pair{strings.ToLower(tokens[i]), strings.ToLower(tokens[i+1])}]; ok {
				out = append(out, tokens[i]+Joiner+tokens[i+1])
				i++
				continue
			}
		}
		out = append(out, tokens[i])
	}
	return out
}

// Apply rewrites text: collocations are joined, and sentence boundaries
// kept as ". ". Words keep their case so later stages can still tell proper
// nouns apart.
func (ph *Phraser) Apply(text string) string {
	streams := split(text, false)
	parts := make([]string, 0, len(streams))
	for _, s := range streams {
		for _, l := range ph.layers {
			s = l.join(s)
		}
		parts = append(parts, strings.Join(s, " "))
	}
	return strings.Join(parts, ". ")
}

// ApplyAll rewrites every text.
func (ph *Phraser) ApplyAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = ph.Apply(t)
	}
	return out
}

// Phrases lists learned collocations, best score first.
func (ph *Phraser) Phrases() []Phrase {
	return append([]Phrase(nil), ph.phrases...)
}

// Streams splits text into lowercase word runs. Sentence punctuation and
// line breaks end a run so no phrase can span them.
func Streams(text string) [][]string {
	return split(text, true)
}

func split(text string, lower bool) [][]string {
	var (
		streams [][]string
		current []string
		word    strings.Builder
	)
	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		if w := strings.Trim(word.String(), "-_"); w != "" {
			current = append(current, w)
		}
		word.Reset()
	}
	flushStream := func() {
		flushWord()
		if len(current) > 0 {
			streams = append(streams, current)
			current = nil
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			if lower {
				r = unicode.ToLower(r)
			}
			word.WriteRune(r)
		case isBoundary(r):
			flushStream()
		default:
			flushWord()
		}
	}
	flushStream()
	return streams
}

func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':', '\n', '\r':
		return true
	}
	return false
}

func isPhrase(tok string) bool {
	return strings.Contains(tok, Joiner)
}
