package tokenize

import (
	"strings"
	"unicode/utf8"
)

// Simple lowercases, splits, and drops short, numeric, and stopword tokens.
type Simple struct {
	stop   StopSet
	minLen int
}

// NewSimple creates the lightweight strategy.
func NewSimple(stop StopSet, minLen int) *Simple {
	if stop == nil {
		stop = StopSet{}
	}
	return &Simple{stop: stop, minLen: minLen}
}

func (s *Simple) Name() string { return ModeSimple }

// Tokenize implements Strategy.
func (s *Simple) Tokenize(text string) []string {
	var tokens []string
	for _, w := range scanWords(text) {
		if t := s.normalize(w); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Display implements Strategy; simple terms are already readable.
func (s *Simple) Display(term string) string { return term }

// Key implements Strategy.
func (s *Simple) Key(word string) string { return plainKey(word) }

// IsStopword reports whether word is on this tokenizer's stoplist.
func (s *Simple) IsStopword(word string) bool { return s.stop.Has(word) }

// normalize returns the term for a scanned word, or "" when it is dropped.
// Phrase tokens are kept whole unless every part is a stopword.
func (s *Simple) normalize(word string) string {
	word = cleanToken(word)
	if word == "" || isNumericOnly(word) {
		return ""
	}
	if IsPhrase(word) {
		for _, part := range strings.Split(word, PhraseJoiner) {
			if !s.stop.Has(part) {
				return word
			}
		}
		return ""
	}
	if utf8.RuneCountInString(word) < s.minLen || s.stop.Has(word) {
		return ""
	}
	return word
}
