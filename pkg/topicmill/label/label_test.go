package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/coherence"
)

func TestBuild(t *testing.T) {
	terms := [][]coherence.Term{
		{{"vaccin", 0.9}, {"public_health", 0.7}, {"clinic", 0.5}, {"nurs", 0.2}},
		{{"solar", 1.2}, {"grid", 0.3}},
		{},
	}
	dt := mat.NewDense(4, 3, []float64{
		0.2, 0.8, 0,
		0.1, 0.9, 0,
		0.9, 0.1, 0,
		0.5, 0.4, 0.1,
	})
	forms := map[string]string{"vaccin": "vaccines", "nurs": "nurses"}
	display := func(s string) string {
		if f, ok := forms[s]; ok {
			return f
		}
		return s
	}

	topics := Build(terms, dt, display, 3)
	require.Len(t, topics, 3)

	assert.Equal(t, "vaccines, public health, clinic", topics[0].Label)
	assert.Equal(t, "solar, grid", topics[1].Label)
	assert.Equal(t, "topic 3", topics[2].Label)

	assert.Equal(t, []coherence.Term{{"vaccines", 0.9}, {"public_health", 0.7}, {"clinic", 0.5}, {"nurses", 0.2}}, topics[0].Terms)

	assert.InDelta(t, 1.7/4, topics[0].Coverage, 1e-12)
	assert.InDelta(t, 2.2/4, topics[1].Coverage, 1e-12)
	assert.InDelta(t, 0.1/4, topics[2].Coverage, 1e-12)

	assert.Equal(t, 1, topics[0].Rank)
	assert.Equal(t, 0, topics[1].Rank)
	assert.Equal(t, 2, topics[2].Rank)
}

func TestCoverageSumsToOne(t *testing.T) {
	dt := mat.NewDense(3, 2, []float64{0.3, 0.7, 1, 0, 0.5, 0.5})
	cov := Coverage(dt)
	assert.InDelta(t, 1.0, cov[0]+cov[1], 1e-12)
	assert.InDelta(t, 0.6, cov[0], 1e-12)
}

func TestCoverageIgnoresUnassignedDocuments(t *testing.T) {
	with := Coverage(mat.NewDense(3, 2, []float64{0.3, 0.7, 0, 0, 1, 0}))
	without := Coverage(mat.NewDense(2, 2, []float64{0.3, 0.7, 1, 0}))
	assert.Equal(t, without, with)
	assert.InDelta(t, 0.65, with[0], 1e-12)
}

func TestRanksAreDense(t *testing.T) {
	terms := make([][]coherence.Term, 4)
	dt := mat.NewDense(1, 4, []float64{0.25, 0.25, 0.25, 0.25})
	topics := Build(terms, dt, nil, 3)

	ranks := make([]int, len(topics))
	for i, tp := range topics {
		ranks[i] = tp.Rank
	}
	assert.Equal(t, []int{0, 1, 2, 3}, ranks, "equal coverage keeps factorization order")
}
