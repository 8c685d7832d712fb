package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

func TestResolveNilProviderUsesDefaults(t *testing.T) {
	s, warnings := Resolve(nil)
	assert.Empty(t, warnings)

	assert.Equal(t, 5, s.PhraseMinCount)
	assert.Equal(t, 15.0, s.PhraseThreshold)
	assert.Equal(t, 3, s.MinDF)
	assert.Equal(t, 0.7, s.MaxDF)
	assert.Equal(t, []int{10, 15, 20, 25}, s.KGrid)
	assert.Equal(t, 12, s.TopWords)
	assert.Equal(t, 400, s.MinDocLenChars)
	assert.Zero(t, s.MaxPerDomain)
	assert.Equal(t, 500, s.MaxIter)
	assert.Equal(t, int64(42), s.Seed)
	assert.Equal(t, 0.02, s.TieTolerance)
	assert.True(t, s.UseEnhancedTokenizer)
	assert.Equal(t, TokenizerEnhanced, s.TokenizerMode())
}

func TestResolveValidValues(t *testing.T) {
	s, warnings := Resolve(Map{
		"phrase_min_count":       "2",
		"tfidf_max_df":           0.5,
		"k_grid":                 []any{4, 2, 3, 3},
		"max_per_domain":         1,
		"use_enhanced_tokenizer": "false",
		"factorization_seed":     7,
		"run_timeout":            "90s",
	})
	require.Empty(t, warnings)

	assert.Equal(t, 2, s.PhraseMinCount)
	assert.Equal(t, 0.5, s.MaxDF)
	assert.Equal(t, []int{2, 3, 4}, s.KGrid)
	assert.Equal(t, 1, s.MaxPerDomain)
	assert.False(t, s.UseEnhancedTokenizer)
	assert.Equal(t, TokenizerSimple, s.TokenizerMode())
	assert.Equal(t, int64(7), s.Seed)
	assert.Equal(t, 90*time.Second, s.RunTimeout)
}

func TestResolveInvalidValuesFallBack(t *testing.T) {
	cases := []struct {
		key   string
		value any
		check func(t *testing.T, s Settings)
	}{
		{"tfidf_min_df", 0, func(t *testing.T, s Settings) { assert.Equal(t, 3, s.MinDF) }},
		{"tfidf_max_df", 1.5, func(t *testing.T, s Settings) { assert.Equal(t, 0.7, s.MaxDF) }},
		{"k_grid", []any{}, func(t *testing.T, s Settings) { assert.Equal(t, []int{10, 15, 20, 25}, s.KGrid) }},
		{"k_grid", "ten", func(t *testing.T, s Settings) { assert.Equal(t, []int{10, 15, 20, 25}, s.KGrid) }},
		{"k_grid", []any{2.5, 3}, func(t *testing.T, s Settings) { assert.Equal(t, []int{10, 15, 20, 25}, s.KGrid) }},
		{"k_grid", "2.5, 3", func(t *testing.T, s Settings) { assert.Equal(t, []int{10, 15, 20, 25}, s.KGrid) }},
		{"k_grid", 7.5, func(t *testing.T, s Settings) { assert.Equal(t, []int{10, 15, 20, 25}, s.KGrid) }},
		{"top_words", 12.5, func(t *testing.T, s Settings) { assert.Equal(t, 12, s.TopWords) }},
		{"coherence_tie_tolerance", 1.5, func(t *testing.T, s Settings) { assert.Equal(t, 0.02, s.TieTolerance) }},
		{"phrase_threshold", -1, func(t *testing.T, s Settings) { assert.Equal(t, 15.0, s.PhraseThreshold) }},
		{"max_per_domain", -2, func(t *testing.T, s Settings) { assert.Zero(t, s.MaxPerDomain) }},
		{"use_enhanced_tokenizer", "maybe", func(t *testing.T, s Settings) { assert.True(t, s.UseEnhancedTokenizer) }},
		{"run_timeout", "soon", func(t *testing.T, s Settings) { assert.Zero(t, s.RunTimeout) }},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			s, warnings := Resolve(Map{tc.key: tc.value})
			require.Len(t, warnings, 1)
			assert.Equal(t, tc.key, warnings[0].Key)
			assert.ErrorIs(t, warnings[0], internalerr.ErrInvalidConfig)
			tc.check(t, s)
		})
	}
}

func TestResolveMaxPerDomainNone(t *testing.T) {
	for _, v := range []any{"none", "None", nil, 0} {
		s, warnings := Resolve(Map{"max_per_domain": v})
		assert.Empty(t, warnings, "value %v", v)
		assert.Zero(t, s.MaxPerDomain, "value %v", v)
	}
}

func TestResolveKGridFromString(t *testing.T) {
	s, warnings := Resolve(Map{"k_grid": "[5, 3,8]"})
	require.Empty(t, warnings)
	assert.Equal(t, []int{3, 5, 8}, s.KGrid)

	s, warnings = Resolve(Map{"k_grid": 6})
	require.Empty(t, warnings)
	assert.Equal(t, []int{6}, s.KGrid)

	// YAML and JSON decode numbers as floats; whole ones are fine.
	s, warnings = Resolve(Map{"k_grid": []float64{4, 2.0}})
	require.Empty(t, warnings)
	assert.Equal(t, []int{2, 4}, s.KGrid)
}

func TestResolveLabelTermsClamped(t *testing.T) {
	s, warnings := Resolve(Map{"top_words": 2, "label_terms": 5})
	require.Len(t, warnings, 1)
	assert.Equal(t, "label_terms", warnings[0].Key)
	assert.Equal(t, 2, s.LabelTerms)
}

type failingProvider struct{}

func (failingProvider) Lookup(key string) (any, bool, error) {
	if key == "top_words" {
		return nil, false, errors.New("backend offline")
	}
	return nil, false, nil
}

func TestResolveProviderErrorKeepsDefault(t *testing.T) {
	s, warnings := Resolve(failingProvider{})
	require.Len(t, warnings, 1)
	assert.Equal(t, "top_words", warnings[0].Key)
	assert.Contains(t, warnings[0].Error(), "backend offline")
	assert.Equal(t, 12, s.TopWords)
}

func TestChainFirstHitWins(t *testing.T) {
	p := Chain(failingProvider{}, Map{"top_words": 8}, Map{"top_words": 20, "tfidf_min_df": 2})
	s, warnings := Resolve(p)
	assert.Empty(t, warnings)
	assert.Equal(t, 8, s.TopWords)
	assert.Equal(t, 2, s.MinDF)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	data := `
phrase_min_count: 3
k_grid: [2, 3, 4]
max_per_domain: none
tfidf_max_df: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	m, err := LoadYAML(path)
	require.NoError(t, err)

	s, warnings := Resolve(m)
	require.Empty(t, warnings)
	assert.Equal(t, 3, s.PhraseMinCount)
	assert.Equal(t, []int{2, 3, 4}, s.KGrid)
	assert.Zero(t, s.MaxPerDomain)
	assert.Equal(t, 0.8, s.MaxDF)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("TOPICMILL_K_GRID", "3, 6")
	t.Setenv("TOPICMILL_TFIDF_MIN_DF", "2")

	s, warnings := Resolve(Env{})
	require.Empty(t, warnings)
	assert.Equal(t, []int{3, 6}, s.KGrid)
	assert.Equal(t, 2, s.MinDF)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TOPICMILL_TEST_TOP_WORDS=9\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TOPICMILL_TEST_TOP_WORDS") })

	require.NoError(t, LoadEnvFile(path))
	s, warnings := Resolve(Env{Prefix: "TOPICMILL_TEST_"})
	require.Empty(t, warnings)
	assert.Equal(t, 9, s.TopWords)
}

func TestParamsSnapshot(t *testing.T) {
	s := Defaults()
	p := s.Params()
	assert.Equal(t, "none", p["max_per_domain"])
	assert.Equal(t, []int{10, 15, 20, 25}, p["k_grid"])

	s.MaxPerDomain = 2
	assert.Equal(t, 2, s.Params()["max_per_domain"])
}
