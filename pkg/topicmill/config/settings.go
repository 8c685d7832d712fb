package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

// Tokenizer modes
const (
	TokenizerSimple   = "simple"
	TokenizerEnhanced = "enhanced"
)

// Settings holds every tunable of a pipeline run after defaults and
// validation have been applied.
type Settings struct {
	PhraseMinCount  int     `json:"phrase_min_count"`
	PhraseThreshold float64 `json:"phrase_threshold"`

	MinDF       int     `json:"tfidf_min_df"`
	MaxDF       float64 `json:"tfidf_max_df"`
	MaxFeatures int     `json:"tfidf_max_features"`

	KGrid    []int `json:"k_grid"`
	TopWords int   `json:"top_words"`

	MinDocLenChars  int      `json:"min_doc_len_chars"`
	MaxPerDomain    int      `json:"max_per_domain"` // 0 means no cap
	MinDocuments    int      `json:"min_documents"`
	ErrorMarkers    []string `json:"error_markers"`
	DedupeDocuments bool     `json:"dedupe_documents"`

	MaxIter     int     `json:"factorization_max_iter"`
	Seed        int64   `json:"factorization_seed"`
	Tol         float64 `json:"factorization_tol"`
	Restarts    int     `json:"factorization_restarts"`
	Concurrency int     `json:"fit_concurrency"`

	UseEnhancedTokenizer bool   `json:"use_enhanced_tokenizer"`
	MinTokenLen          int    `json:"min_token_len"`
	Language             string `json:"tokenizer_language"`
	StopwordsPath        string `json:"stopwords_path"`

	TieTolerance      float64       `json:"coherence_tie_tolerance"`
	LabelTerms        int           `json:"label_terms"`
	ExemplarsPerTopic int           `json:"exemplars_per_topic"`
	SnippetChars      int           `json:"snippet_chars"`
	RunTimeout        time.Duration `json:"run_timeout"`
}

// DefaultErrorMarkers are placeholder bodies the harvester writes when a
// fetch or extraction failed.
var DefaultErrorMarkers = []string{
	"[error]",
	"error fetching page",
	"failed to fetch",
	"failed to extract",
	"no content",
	"content unavailable",
	"access denied",
	"403 forbidden",
	"404 not found",
	"page not found",
	"enable javascript",
	"captcha",
}

// Defaults returns the documented defaults.
func Defaults() Settings {
	return Settings{
		PhraseMinCount:       5,
		PhraseThreshold:      15.0,
		MinDF:                3,
		MaxDF:                0.7,
		MaxFeatures:          5000,
		KGrid:                []int{10, 15, 20, 25},
		TopWords:             12,
		MinDocLenChars:       400,
		MaxPerDomain:         0,
		MinDocuments:         1,
		ErrorMarkers:         append([]string(nil), DefaultErrorMarkers...),
		DedupeDocuments:      true,
		MaxIter:              500,
		Seed:                 42,
		Tol:                  1e-4,
		Restarts:             3,
		Concurrency:          runtime.GOMAXPROCS(0),
		UseEnhancedTokenizer: true,
		MinTokenLen:          3,
		Language:             "english",
		TieTolerance:         0.02,
		LabelTerms:           3,
		ExemplarsPerTopic:    3,
		SnippetChars:         320,
	}
}

// Warning records a tunable that could not be used as supplied.
type Warning struct {
	Key   string
	Value any
	Err   error
}

func (w Warning) Error() string {
	return fmt.Sprintf("config %s=%v: %v", w.Key, w.Value, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

type rule struct {
	key   string
	apply func(s *Settings, v any) error
}

var rules = []rule{
	{"phrase_min_count", intAtLeast(1, func(s *Settings, n int) { s.PhraseMinCount = n })},
	{"phrase_threshold", floatAbove(0, func(s *Settings, f float64) { s.PhraseThreshold = f })},
	{"tfidf_min_df", intAtLeast(1, func(s *Settings, n int) { s.MinDF = n })},
	{"tfidf_max_df", func(s *Settings, v any) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		if f <= 0 || f > 1 {
			return fmt.Errorf("must be a fraction in (0, 1], got %v", f)
		}
		s.MaxDF = f
		return nil
	}},
	{"tfidf_max_features", intAtLeast(1, func(s *Settings, n int) { s.MaxFeatures = n })},
	{"k_grid", func(s *Settings, v any) error {
		grid, err := toIntList(v)
		if err != nil {
			return err
		}
		if len(grid) == 0 {
			return errors.New("must list at least one topic count")
		}
		for _, k := range grid {
			if k < 1 {
				return fmt.Errorf("topic count %d must be >= 1", k)
			}
		}
		s.KGrid = grid
		return nil
	}},
	{"top_words", intAtLeast(2, func(s *Settings, n int) { s.TopWords = n })},
	{"min_doc_len_chars", intAtLeast(0, func(s *Settings, n int) { s.MinDocLenChars = n })},
	{"max_per_domain", func(s *Settings, v any) error {
		if v == nil {
			s.MaxPerDomain = 0
			return nil
		}
		if str, ok := v.(string); ok {
			switch strings.ToLower(strings.TrimSpace(str)) {
			case "", "none", "null", "off":
				s.MaxPerDomain = 0
				return nil
			}
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("must be >= 1 or \"none\", got %d", n)
		}
		s.MaxPerDomain = n
		return nil
	}},
	{"min_documents", intAtLeast(1, func(s *Settings, n int) { s.MinDocuments = n })},
	{"error_markers", func(s *Settings, v any) error {
		markers, err := cast.ToStringSliceE(v)
		if err != nil {
			return err
		}
		s.ErrorMarkers = markers
		return nil
	}},
	{"dedupe_documents", boolValue(func(s *Settings, b bool) { s.DedupeDocuments = b })},
	{"factorization_max_iter", intAtLeast(1, func(s *Settings, n int) { s.MaxIter = n })},
	{"factorization_seed", func(s *Settings, v any) error {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return err
		}
		s.Seed = n
		return nil
	}},
	{"factorization_tol", floatAbove(0, func(s *Settings, f float64) { s.Tol = f })},
	{"factorization_restarts", intAtLeast(1, func(s *Settings, n int) { s.Restarts = n })},
	{"fit_concurrency", intAtLeast(1, func(s *Settings, n int) { s.Concurrency = n })},
	{"use_enhanced_tokenizer", boolValue(func(s *Settings, b bool) { s.UseEnhancedTokenizer = b })},
	{"min_token_len", intAtLeast(1, func(s *Settings, n int) { s.MinTokenLen = n })},
	{"tokenizer_language", func(s *Settings, v any) error {
		str, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		str = strings.ToLower(strings.TrimSpace(str))
		if str == "" {
			return errors.New("must not be empty")
		}
		s.Language = str
		return nil
	}},
	{"stopwords_path", func(s *Settings, v any) error {
		str, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		s.StopwordsPath = strings.TrimSpace(str)
		return nil
	}},
	{"coherence_tie_tolerance", func(s *Settings, v any) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		if f < 0 || f >= 1 {
			return fmt.Errorf("must be a fraction in [0, 1), got %v", f)
		}
		s.TieTolerance = f
		return nil
	}},
	{"label_terms", intAtLeast(1, func(s *Settings, n int) { s.LabelTerms = n })},
	{"exemplars_per_topic", intAtLeast(0, func(s *Settings, n int) { s.ExemplarsPerTopic = n })},
	{"snippet_chars", intAtLeast(40, func(s *Settings, n int) { s.SnippetChars = n })},
	{"run_timeout", func(s *Settings, v any) error {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("must be >= 0, got %s", d)
		}
		s.RunTimeout = d
		return nil
	}},
}

// Keys lists every recognised tunable.
func Keys() []string {
	keys := make([]string, len(rules))
	for i, r := range rules {
		keys[i] = r.key
	}
	return keys
}

// Resolve reads every known key from p. Missing keys keep their default;
// unreadable or invalid values keep their default and produce a Warning.
// A nil provider yields the defaults.
func Resolve(p Provider) (Settings, []Warning) {
	s := Defaults()
	if p == nil {
		return s, nil
	}

	var warnings []Warning
	for _, r := range rules {
		v, ok, err := p.Lookup(r.key)
		if err != nil {
			warnings = append(warnings, Warning{Key: r.key, Err: fmt.Errorf("%w: lookup: %w", internalerr.ErrInvalidConfig, err)})
			continue
		}
		if !ok {
			continue
		}
		if err := r.apply(&s, v); err != nil {
			warnings = append(warnings, Warning{Key: r.key, Value: v, Err: fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, err)})
		}
	}

	if s.LabelTerms > s.TopWords {
		warnings = append(warnings, Warning{
			Key:   "label_terms",
			Value: s.LabelTerms,
			Err:   fmt.Errorf("%w: exceeds top_words %d", internalerr.ErrInvalidConfig, s.TopWords),
		})
		s.LabelTerms = min(Defaults().LabelTerms, s.TopWords)
	}
	return s, warnings
}

// TokenizerMode reports which tokenizer strategy the settings request.
func (s Settings) TokenizerMode() string {
	if s.UseEnhancedTokenizer {
		return TokenizerEnhanced
	}
	return TokenizerSimple
}

// Params returns the settings as a flat map for recording alongside a model.
func (s Settings) Params() map[string]any {
	maxPerDomain := any("none")
	if s.MaxPerDomain > 0 {
		maxPerDomain = s.MaxPerDomain
	}
	return map[string]any{
		"phrase_min_count":        s.PhraseMinCount,
		"phrase_threshold":        s.PhraseThreshold,
		"tfidf_min_df":            s.MinDF,
		"tfidf_max_df":            s.MaxDF,
		"tfidf_max_features":      s.MaxFeatures,
		"k_grid":                  append([]int(nil), s.KGrid...),
		"top_words":               s.TopWords,
		"min_doc_len_chars":       s.MinDocLenChars,
		"max_per_domain":          maxPerDomain,
		"min_documents":           s.MinDocuments,
		"dedupe_documents":        s.DedupeDocuments,
		"factorization_max_iter":  s.MaxIter,
		"factorization_seed":      s.Seed,
		"factorization_tol":       s.Tol,
		"factorization_restarts":  s.Restarts,
		"use_enhanced_tokenizer":  s.UseEnhancedTokenizer,
		"min_token_len":           s.MinTokenLen,
		"tokenizer_language":      s.Language,
		"coherence_tie_tolerance": s.TieTolerance,
		"label_terms":             s.LabelTerms,
		"exemplars_per_topic":     s.ExemplarsPerTopic,
		"snippet_chars":           s.SnippetChars,
	}
}

func intAtLeast(lo int, set func(*Settings, int)) func(*Settings, any) error {
	return func(s *Settings, v any) error {
		n, err := wholeNumber(v)
		if err != nil {
			return err
		}
		if n < lo {
			return fmt.Errorf("must be >= %d, got %d", lo, n)
		}
		set(s, n)
		return nil
	}
}

func floatAbove(lo float64, set func(*Settings, float64)) func(*Settings, any) error {
	return func(s *Settings, v any) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		if f <= lo {
			return fmt.Errorf("must be > %v, got %v", lo, f)
		}
		set(s, f)
		return nil
	}
}

func boolValue(set func(*Settings, bool)) func(*Settings, any) error {
	return func(s *Settings, v any) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		set(s, b)
		return nil
	}
}

// wholeNumber converts v to an int, rejecting fractional values instead of
// truncating them.
func wholeNumber(v any) (int, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a whole number", v)
	}
	return int(f), nil
}

// toIntList accepts YAML/JSON lists, comma separated strings and single
// numbers. Every entry must be a whole number. The result is sorted and free
// of duplicates.
func toIntList(v any) ([]int, error) {
	if str, ok := v.(string); ok {
		v = strings.FieldsFunc(str, func(r rune) bool { return r == ',' || r == ' ' || r == '[' || r == ']' })
	}
	var items []any
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			items = append(items, rv.Index(i).Interface())
		}
	} else {
		items = []any{v}
	}

	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := wholeNumber(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
