// Package memstore keeps topic models in process memory. It backs dry runs
// and tests and follows the same all-or-nothing contract as the SQL stores.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
)

type weightKey struct {
	model, doc, topic string
}

// Store is an in-memory store.Store.
type Store struct {
	mu       sync.RWMutex
	models   map[string]store.Model
	topics   map[string]store.Topic
	weights  map[weightKey]store.DocumentWeight
	snippets map[string]store.Snippet
}

// New returns an empty store.
func New() *Store {
	return &Store{
		models:   make(map[string]store.Model),
		topics:   make(map[string]store.Topic),
		weights:  make(map[weightKey]store.DocumentWeight),
		snippets: make(map[string]store.Snippet),
	}
}

func (s *Store) Close() error { return nil }

func persistErr(err error) error {
	return fmt.Errorf("save run: %w: %w", internalerr.ErrPersistence, err)
}

// SaveRun checks every key before touching the maps so a rejected run
// leaves no trace.
func (s *Store) SaveRun(ctx context.Context, run store.Run) error {
	if err := ctx.Err(); err != nil {
		return persistErr(err)
	}
	if err := run.Validate(); err != nil {
		return persistErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[run.Model.ID]; ok {
		return persistErr(fmt.Errorf("model %s already exists", run.Model.ID))
	}
	for _, t := range run.Topics {
		if _, ok := s.topics[t.ID]; ok {
			return persistErr(fmt.Errorf("topic %s already exists", t.ID))
		}
	}
	seenWeights := make(map[weightKey]struct{}, len(run.Weights))
	for _, w := range run.Weights {
		k := weightKey{w.ModelID, w.DocumentID, w.TopicID}
		if _, ok := seenWeights[k]; ok {
			return persistErr(fmt.Errorf("duplicate weight %s/%s", w.DocumentID, w.TopicID))
		}
		seenWeights[k] = struct{}{}
	}
	seenSnippets := make(map[string]struct{}, len(run.Snippets))
	for _, sn := range run.Snippets {
		_, dup := seenSnippets[sn.ID]
		if _, ok := s.snippets[sn.ID]; ok || dup {
			return persistErr(fmt.Errorf("snippet %s already exists", sn.ID))
		}
		seenSnippets[sn.ID] = struct{}{}
	}

	m := run.Model
	m.Params = maps.Clone(m.Params)
	s.models[m.ID] = m
	for _, t := range run.Topics {
		t.TopTerms = slices.Clone(t.TopTerms)
		s.topics[t.ID] = t
	}
	for _, w := range run.Weights {
		s.weights[weightKey{w.ModelID, w.DocumentID, w.TopicID}] = w
	}
	for _, sn := range run.Snippets {
		s.snippets[sn.ID] = sn
	}
	return nil
}

// DeleteModel removes a model with its topics, weights and snippets.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[id]; !ok {
		return fmt.Errorf("model %s: %w", id, internalerr.ErrNotFound)
	}
	delete(s.models, id)
	maps.DeleteFunc(s.topics, func(_ string, t store.Topic) bool { return t.ModelID == id })
	maps.DeleteFunc(s.weights, func(k weightKey, _ store.DocumentWeight) bool { return k.model == id })
	maps.DeleteFunc(s.snippets, func(_ string, sn store.Snippet) bool { return sn.ModelID == id })
	return nil
}

func (s *Store) GetModel(ctx context.Context, id string) (store.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return store.Model{}, fmt.Errorf("model %s: %w", id, internalerr.ErrNotFound)
	}
	return m, nil
}

func (s *Store) LatestModel(ctx context.Context, corpusID string) (store.Model, bool, error) {
	models, _ := s.ListModels(ctx, corpusID, 1)
	if len(models) == 0 {
		return store.Model{}, false, nil
	}
	return models[0], true, nil
}

// ListModels returns the newest models of a corpus first.
func (s *Store) ListModels(ctx context.Context, corpusID string, limit int) ([]store.Model, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	var models []store.Model
	for _, m := range s.models {
		if m.CorpusID == corpusID {
			models = append(models, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(models, func(i, j int) bool {
		a, b := models[i], models[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if len(models) > limit {
		models = models[:limit]
	}
	return models, nil
}

func (s *Store) TopicsByModel(ctx context.Context, modelID string) ([]store.Topic, error) {
	s.mu.RLock()
	var topics []store.Topic
	for _, t := range s.topics {
		if t.ModelID == modelID {
			t.TopTerms = slices.Clone(t.TopTerms)
			topics = append(topics, t)
		}
	}
	s.mu.RUnlock()
	sort.Slice(topics, func(i, j int) bool { return topics[i].Rank < topics[j].Rank })
	return topics, nil
}

func (s *Store) SnippetsByTopic(ctx context.Context, topicID string) ([]store.Snippet, error) {
	s.mu.RLock()
	var snippets []store.Snippet
	for _, sn := range s.snippets {
		if sn.TopicID == topicID {
			snippets = append(snippets, sn)
		}
	}
	s.mu.RUnlock()
	sort.Slice(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		return snippets[i].ID < snippets[j].ID
	})
	return snippets, nil
}

func (s *Store) DocumentWeights(ctx context.Context, modelID string) ([]store.DocumentWeight, error) {
	s.mu.RLock()
	var weights []store.DocumentWeight
	for k, w := range s.weights {
		if k.model == modelID {
			weights = append(weights, w)
		}
	}
	s.mu.RUnlock()
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].DocumentID != weights[j].DocumentID {
			return weights[i].DocumentID < weights[j].DocumentID
		}
		return weights[i].TopicID < weights[j].TopicID
	})
	return weights, nil
}

var _ store.Store = (*Store)(nil)
