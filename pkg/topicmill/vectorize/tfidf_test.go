package vectorize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

func docs() [][]string {
	return [][]string{
		{"solar", "panel", "solar", "everywhere"},
		{"solar", "grid", "everywhere"},
		{"panel", "grid", "rare", "everywhere"},
		{"solar", "panel", "grid", "everywhere"},
		{"nothing", "matches"},
	}
}

func TestFitBoundsVocabulary(t *testing.T) {
	m, err := TFIDF{MinDF: 2, MaxDF: 0.7}.Fit(docs())
	require.NoError(t, err)

	// "everywhere" is in 4/5 documents (> 0.7), "rare" in 1 (< 2).
	assert.Equal(t, []string{"grid", "panel", "solar"}, m.Vocabulary)
	assert.Equal(t, []int{3, 3, 3}, m.DF)
	assert.Equal(t, []int{0, 1, 2, 3}, m.Rows)
	assert.Equal(t, 1, m.Dropped)
	assert.Equal(t, 5, m.Documents)

	r, c := m.X.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 3, c)
}

func TestFitWeights(t *testing.T) {
	m, err := TFIDF{MinDF: 2, MaxDF: 0.7}.Fit(docs())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		row := mat.Row(nil, i, m.X)
		assert.InDelta(t, 1.0, floats(row), 1e-12, "row %d is unit length", i)
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}

	// Row 0: solar twice, panel once, equal idf, so solar weighs double.
	solar, panel := m.X.At(0, m.Index["solar"]), m.X.At(0, m.Index["panel"])
	assert.InDelta(t, 2*panel, solar, 1e-12)
	assert.Equal(t, 0.0, m.X.At(0, m.Index["grid"]))
}

func floats(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestFitIDFFavoursRareTerms(t *testing.T) {
	tokens := [][]string{
		{"common", "niche"},
		{"common", "other"},
		{"common", "other"},
		{"niche", "other"},
	}
	m, err := TFIDF{MinDF: 1, MaxDF: 1}.Fit(tokens)
	require.NoError(t, err)
	// Row 0 holds common (df 3) and niche (df 2) once each.
	assert.Greater(t, m.X.At(0, m.Index["niche"]), m.X.At(0, m.Index["common"]))
}

func TestFitMaxFeatures(t *testing.T) {
	tokens := [][]string{
		{"alpha", "alpha", "beta", "gamma"},
		{"alpha", "beta", "delta"},
		{"alpha", "gamma", "delta"},
	}
	m, err := TFIDF{MinDF: 1, MaxDF: 1, MaxFeatures: 2}.Fit(tokens)
	require.NoError(t, err)
	// alpha 4; beta, gamma, delta 2 each, ties by term.
	assert.Equal(t, []string{"alpha", "beta"}, m.Vocabulary)
}

func TestFitDegenerate(t *testing.T) {
	repeated := make([][]string, 10)
	for i := range repeated {
		repeated[i] = []string{"same", "words", "again"}
	}
	_, err := TFIDF{MinDF: 3, MaxDF: 0.7}.Fit(repeated)
	assert.ErrorIs(t, err, internalerr.ErrDegenerateVocabulary)

	_, err = TFIDF{MinDF: 1, MaxDF: 1}.Fit(nil)
	assert.ErrorIs(t, err, internalerr.ErrDegenerateVocabulary)

	_, err = TFIDF{MinDF: 1, MaxDF: 1}.Fit([][]string{{}, {}})
	assert.ErrorIs(t, err, internalerr.ErrDegenerateVocabulary)
}

func TestMatrixTokens(t *testing.T) {
	tokens := docs()
	m, err := TFIDF{MinDF: 2, MaxDF: 0.7}.Fit(tokens)
	require.NoError(t, err)

	got := m.Tokens(tokens)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"solar", "panel", "solar"}, got[0])
	assert.Equal(t, []string{"panel", "grid"}, got[2])
}
