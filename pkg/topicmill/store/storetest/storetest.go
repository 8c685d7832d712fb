// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
)

// SampleRun builds a valid two-topic run for model id.
func SampleRun(id, corpusID string, created time.Time) store.Run {
	t0, t1 := id+"-t0", id+"-t1"
	return store.Run{
		Model: store.Model{
			ID:              id,
			CorpusID:        corpusID,
			Algorithm:       "nmf-hals",
			CreatedAt:       created,
			K:               2,
			Coherence:       0.42,
			MinDF:           3,
			MaxDF:           0.7,
			PhraseMinCount:  5,
			PhraseThreshold: 15,
			Params:          map[string]any{"k_grid": []any{2.0, 3.0}, "top_words": 12.0},
			DocumentCount:   3,
			VocabularySize:  40,
		},
		Topics: []store.Topic{
			{ID: t0, ModelID: id, Label: "solar, panel, grid", Coverage: 0.6, Rank: 0,
				TopTerms: []store.TermWeight{{Term: "solar", Weight: 0.9}, {Term: "panel", Weight: 0.5}, {Term: "grid", Weight: 0.2}}},
			{ID: t1, ModelID: id, Label: "vaccine, clinic", Coverage: 0.4, Rank: 1,
				TopTerms: []store.TermWeight{{Term: "vaccine", Weight: 0.8}, {Term: "clinic", Weight: 0.4}}},
		},
		Weights: []store.DocumentWeight{
			{ModelID: id, DocumentID: "d1", TopicID: t0, Weight: 1},
			{ModelID: id, DocumentID: "d2", TopicID: t0, Weight: 0.25},
			{ModelID: id, DocumentID: "d2", TopicID: t1, Weight: 0.75},
			{ModelID: id, DocumentID: "d3", TopicID: t1, Weight: 1},
		},
		Snippets: []store.Snippet{
			{ID: id + "-s0", ModelID: id, TopicID: t0, URL: "https://a.example/1", Domain: "a.example", Title: "Solar", Text: "solar panel grid", Score: 1},
			{ID: id + "-s1", ModelID: id, TopicID: t1, URL: "https://b.example/2", Domain: "b.example", Title: "Clinic", Text: "vaccine clinic", Score: 0.75},
			{ID: id + "-s2", ModelID: id, TopicID: t1, URL: "https://b.example/3", Domain: "b.example", Title: "Clinic 2", Text: "clinic opens", Score: 1},
		},
	}
}

// Run exercises a fresh store from open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("Latest", func(t *testing.T) { testLatest(t, open(t)) })
	t.Run("RejectsInvalidRun", func(t *testing.T) { testRejectsInvalid(t, open(t)) })
	t.Run("FailedSaveLeavesNothing", func(t *testing.T) { testFailedSave(t, open(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
}

var created = time.Date(2026, 6, 1, 8, 30, 0, 123456000, time.UTC)

func testRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	run := SampleRun("m1", "spring", created)
	require.NoError(t, st.SaveRun(ctx, run))

	m, err := st.GetModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "spring", m.CorpusID)
	assert.Equal(t, 2, m.K)
	assert.True(t, m.CreatedAt.Equal(created), "created_at %v", m.CreatedAt)
	assert.Equal(t, 0.42, m.Coherence)
	assert.Equal(t, 12.0, m.Params["top_words"])

	topics, err := st.TopicsByModel(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, 0, topics[0].Rank)
	assert.Equal(t, 1, topics[1].Rank)
	assert.Equal(t, run.Topics[0].TopTerms, topics[0].TopTerms)
	assert.Equal(t, "vaccine, clinic", topics[1].Label)

	weights, err := st.DocumentWeights(ctx, "m1")
	require.NoError(t, err)
	assert.ElementsMatch(t, run.Weights, weights)

	snippets, err := st.SnippetsByTopic(ctx, "m1-t1")
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "m1-s2", snippets[0].ID, "highest score first")
	assert.Equal(t, "b.example", snippets[1].Domain)
}

func testLatest(t *testing.T, st store.Store) {
	ctx := context.Background()
	_, ok, err := st.LatestModel(ctx, "spring")
	require.NoError(t, err)
	assert.False(t, ok)

	for i, id := range []string{"m-old", "m-new", "m-mid"} {
		at := created.Add([]time.Duration{0, 2 * time.Hour, time.Hour}[i])
		require.NoError(t, st.SaveRun(ctx, SampleRun(id, "spring", at)))
	}
	require.NoError(t, st.SaveRun(ctx, SampleRun("m-other", "autumn", created.Add(5*time.Hour))))

	latest, ok, err := st.LatestModel(ctx, "spring")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m-new", latest.ID)

	models, err := st.ListModels(ctx, "spring", 10)
	require.NoError(t, err)
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"m-new", "m-mid", "m-old"}, ids)

	models, err = st.ListModels(ctx, "spring", 1)
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func testRejectsInvalid(t *testing.T, st store.Store) {
	ctx := context.Background()
	cases := map[string]func(*store.Run){
		"duplicate rank":    func(r *store.Run) { r.Topics[1].Rank = 0 },
		"rank out of range": func(r *store.Run) { r.Topics[1].Rank = 2 },
		"k mismatch":        func(r *store.Run) { r.Model.K = 3 },
		"foreign topic":     func(r *store.Run) { r.Snippets[0].TopicID = "elsewhere" },
		"foreign model":     func(r *store.Run) { r.Weights[0].ModelID = "other" },
		"weights off":       func(r *store.Run) { r.Weights[1].Weight = 0.5 },
	}
	for name, mutate := range cases {
		run := SampleRun("bad", "spring", created)
		mutate(&run)
		err := st.SaveRun(ctx, run)
		assert.ErrorIs(t, err, internalerr.ErrPersistence, name)
		assert.ErrorIs(t, err, internalerr.ErrInvalidInput, name)
	}
	_, err := st.GetModel(ctx, "bad")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func testFailedSave(t *testing.T, st store.Store) {
	ctx := context.Background()
	run := SampleRun("m1", "spring", created)
	// The duplicate id only fails once model, topics and weights are written.
	run.Snippets[2].ID = run.Snippets[1].ID

	err := st.SaveRun(ctx, run)
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerr.ErrPersistence)
	assert.Equal(t, internalerr.OutcomePersistenceFailure, internalerr.OutcomeOf(err))

	AssertEmpty(t, st, "m1")
}

// AssertEmpty checks that nothing of model id is visible.
func AssertEmpty(t *testing.T, st store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := st.GetModel(ctx, id)
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
	topics, err := st.TopicsByModel(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, topics)
	weights, err := st.DocumentWeights(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, weights)
	for i := 0; i < 2; i++ {
		snippets, err := st.SnippetsByTopic(ctx, fmt.Sprintf("%s-t%d", id, i))
		require.NoError(t, err)
		assert.Empty(t, snippets)
	}
}

func testDeleteCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	require.NoError(t, st.SaveRun(ctx, SampleRun("m1", "spring", created)))
	require.NoError(t, st.SaveRun(ctx, SampleRun("m2", "spring", created.Add(time.Hour))))

	require.NoError(t, st.DeleteModel(ctx, "m1"))
	AssertEmpty(t, st, "m1")

	topics, err := st.TopicsByModel(ctx, "m2")
	require.NoError(t, err)
	assert.Len(t, topics, 2)

	assert.ErrorIs(t, st.DeleteModel(ctx, "m1"), internalerr.ErrNotFound)
}

func testNotFound(t *testing.T, st store.Store) {
	_, err := st.GetModel(context.Background(), "missing")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}
