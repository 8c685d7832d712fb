package tokenize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stopwords-en.yaml
var defaultStopwords []byte

// Stoplist is the YAML shape of a stopword file.
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// StopSet is a lowercase stopword lookup.
type StopSet map[string]struct{}

// NewStopSet builds a set from words, lowercasing each.
func NewStopSet(words []string) StopSet {
	set := make(StopSet, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// Has reports whether word is a stopword.
func (s StopSet) Has(word string) bool {
	_, ok := s[word]
	return ok
}

// DefaultStopwords returns the embedded English list.
func DefaultStopwords() StopSet {
	set, err := parseStoplist(defaultStopwords)
	if err != nil {
		panic(fmt.Sprintf("embedded stopwords: %v", err))
	}
	return set
}

// LoadStopwords reads a YAML stoplist (a `terms:` sequence) from path.
func LoadStopwords(path string) (StopSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set, err := parseStoplist(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return set, nil
}

func parseStoplist(data []byte) (StopSet, error) {
	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}
	return NewStopSet(sl.Terms), nil
}
