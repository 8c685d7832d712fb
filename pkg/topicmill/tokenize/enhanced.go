package tokenize

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
	"github.com/kljensen/snowball"
)

// phraseStandIn replaces phrase tokens while tagging so the tagger sees a
// noun in their place.
const phraseStandIn = "thing"

// alignWindow bounds how far ahead a word is matched against tagger tokens.
const alignWindow = 8

// Enhanced keeps content parts of speech and reduces words to their stems.
// Phrase tokens bypass tagging and stemming.
type Enhanced struct {
	simple   *Simple
	language string

	mu       sync.Mutex
	surfaces map[string]map[string]int // stem -> surface form -> count
}

// NewEnhanced wraps simple with tagging and stemming for language.
func NewEnhanced(simple *Simple, language string) *Enhanced {
	return &Enhanced{
		simple:   simple,
		language: language,
		surfaces: make(map[string]map[string]int),
	}
}

func (e *Enhanced) Name() string { return ModeEnhanced }

// Tokenize implements Strategy. Words are tagged in their original case and
// lowercased afterwards.
func (e *Enhanced) Tokenize(text string) []string {
	words := scan(text, false)
	tags := e.tag(words)

	var tokens []string
	for i, w := range words {
		t := e.simple.normalize(strings.ToLower(w))
		if t == "" {
			continue
		}
		if IsPhrase(t) {
			tokens = append(tokens, t)
			continue
		}
		if tags[i] != "" && !contentTag(tags[i]) {
			continue
		}
		stem := e.stem(t)
		e.observe(stem, t)
		tokens = append(tokens, stem)
	}
	return tokens
}

// Display returns the most frequent surface form seen for a stem, the
// lexicographically smallest on ties.
func (e *Enhanced) Display(term string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	best, bestN := term, 0
	for form, n := range e.surfaces[term] {
		if n > bestN || (n == bestN && form < best) {
			best, bestN = form, n
		}
	}
	return best
}

// Key implements Strategy.
func (e *Enhanced) Key(word string) string {
	k := plainKey(word)
	if k == "" || IsPhrase(k) {
		return k
	}
	return e.stem(k)
}

func (e *Enhanced) stem(word string) string {
	s, err := snowball.Stem(word, e.language, true)
	if err != nil || s == "" {
		return word
	}
	return s
}

func (e *Enhanced) observe(stem, surface string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	forms, ok := e.surfaces[stem]
	if !ok {
		forms = make(map[string]int)
		e.surfaces[stem] = forms
	}
	forms[surface]++
}

// tag returns one part-of-speech tag per word; words the tagger could not
// be aligned with get "".
func (e *Enhanced) tag(words []string) []string {
	tags := make([]string, len(words))
	if len(words) == 0 {
		return tags
	}
	masked := make([]string, len(words))
	for i, w := range words {
		if IsPhrase(w) {
			masked[i] = phraseStandIn
		} else {
			masked[i] = w
		}
	}

	doc, err := prose.NewDocument(strings.Join(masked, " "),
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return tags
	}
	toks := doc.Tokens()
	next := 0
	for i, w := range masked {
		for j := next; j < len(toks) && j < next+alignWindow; j++ {
			if strings.EqualFold(toks[j].Text, w) {
				tags[i] = toks[j].Tag
				next = j + 1
				break
			}
		}
	}
	return tags
}

// contentTag keeps nouns, proper nouns, verbs and adjectives.
func contentTag(tag string) bool {
	return strings.HasPrefix(tag, "NN") || strings.HasPrefix(tag, "VB") || strings.HasPrefix(tag, "JJ")
}

// checkSupport checks that the stemmer supports language and the tagger runs.
func checkSupport(language string) error {
	if _, err := snowball.Stem("running", language, true); err != nil {
		return fmt.Errorf("stemmer: %w", err)
	}
	doc, err := prose.NewDocument("Nurses visited the clinic.",
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return fmt.Errorf("tagger: %w", err)
	}
	toks := doc.Tokens()
	if len(toks) == 0 || toks[0].Tag == "" {
		return errors.New("tagger produced no tags")
	}
	return nil
}
