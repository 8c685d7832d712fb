// Package tokenize turns phrase-joined text into term sequences.
package tokenize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

const (
	ModeSimple   = "simple"
	ModeEnhanced = "enhanced"
)

// PhraseJoiner separates the parts of a phrase token.
const PhraseJoiner = "_"

// Strategy converts text into terms.
type Strategy interface {
	Name() string
	Tokenize(text string) []string
	// Display maps a term back to a readable form for labels.
	Display(term string) string
	// Key maps a raw word from source text into the term space.
	Key(word string) string
}

// Options selects and configures a strategy.
type Options struct {
	Mode      string
	MinLen    int
	Language  string
	Stopwords StopSet // nil means the embedded English list
	Logger    zerolog.Logger
}

// New builds the requested strategy. When the enhanced strategy cannot be
// set up it logs a warning and returns Simple, along with the reason as
// fallback.
func New(opts Options) (s Strategy, fallback error) {
	if opts.Stopwords == nil {
		opts.Stopwords = DefaultStopwords()
	}
	simple := NewSimple(opts.Stopwords, opts.MinLen)
	if opts.Mode != ModeEnhanced {
		return simple, nil
	}

	lang := opts.Language
	if lang == "" {
		lang = "english"
	}
	if err := checkSupport(lang); err != nil {
		fallback = fmt.Errorf("enhanced tokenizer unavailable, using simple: %w: %w", internalerr.ErrInvalidConfig, err)
		opts.Logger.Warn().Err(err).Str("key", "use_enhanced_tokenizer").Msg("falling back to simple tokenizer")
		return simple, fallback
	}
	return NewEnhanced(simple, lang), nil
}

// scanWords splits text on runes other than letters, digits, '-' and '_'
// and lowercases the words.
func scanWords(text string) []string {
	return scan(text, true)
}

func scan(text string, lower bool) []string {
	var (
		words   []string
		current strings.Builder
	)
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' {
			if lower {
				r = unicode.ToLower(r)
			}
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// cleanToken strips edge hyphens and underscores and collapses repeats.
func cleanToken(token string) string {
	token = strings.Trim(token, "-_")
	for strings.Contains(token, "--") {
		token = strings.ReplaceAll(token, "--", "-")
	}
	for strings.Contains(token, "__") {
		token = strings.ReplaceAll(token, "__", "_")
	}
	return token
}

// plainKey lowercases a raw word and trims surrounding punctuation.
func plainKey(word string) string {
	return cleanToken(strings.TrimFunc(strings.ToLower(word), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// IsPhrase reports whether a term joins several words.
func IsPhrase(term string) bool {
	return strings.Contains(term, PhraseJoiner)
}
