// Package store defines the persisted shape of a topic model and the
// interface every backend implements.
package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

// Store persists topic models. SaveRun writes a whole run or nothing.
type Store interface {
	Close() error

	SaveRun(ctx context.Context, run Run) error
	DeleteModel(ctx context.Context, id string) error

	GetModel(ctx context.Context, id string) (Model, error)
	LatestModel(ctx context.Context, corpusID string) (Model, bool, error)
	ListModels(ctx context.Context, corpusID string, limit int) ([]Model, error)
	TopicsByModel(ctx context.Context, modelID string) ([]Topic, error)
	SnippetsByTopic(ctx context.Context, topicID string) ([]Snippet, error)
	DocumentWeights(ctx context.Context, modelID string) ([]DocumentWeight, error)
}

// Model is one fitted topic model. Immutable once written.
type Model struct {
	ID              string         `json:"id"`
	CorpusID        string         `json:"corpus_id"`
	Algorithm       string         `json:"algorithm"`
	CreatedAt       time.Time      `json:"created_at"`
	K               int            `json:"k"`
	Coherence       float64        `json:"coherence"`
	MinDF           int            `json:"min_df"`
	MaxDF           float64        `json:"max_df"`
	PhraseMinCount  int            `json:"phrase_min_count"`
	PhraseThreshold float64        `json:"phrase_threshold"`
	Params          map[string]any `json:"params,omitempty"`
	DocumentCount   int            `json:"document_count"`
	VocabularySize  int            `json:"vocabulary_size"`
}

// TermWeight is a topic term with its weight in the topic-term factor.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Topic belongs to exactly one model. Rank is dense within the model.
type Topic struct {
	ID       string       `json:"id"`
	ModelID  string       `json:"model_id"`
	Label    string       `json:"label"`
	TopTerms []TermWeight `json:"top_terms"`
	Coverage float64      `json:"coverage"`
	Rank     int          `json:"rank"`
}

// DocumentWeight records how strongly a document loads onto a topic.
type DocumentWeight struct {
	ModelID    string  `json:"model_id"`
	DocumentID string  `json:"document_id"`
	TopicID    string  `json:"topic_id"`
	Weight     float64 `json:"weight"`
}

// Snippet is an exemplar excerpt illustrating a topic.
type Snippet struct {
	ID      string  `json:"id"`
	ModelID string  `json:"model_id"`
	TopicID string  `json:"topic_id"`
	URL     string  `json:"url"`
	Domain  string  `json:"domain"`
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// Run is everything one pipeline run persists.
type Run struct {
	Model    Model
	Topics   []Topic
	Weights  []DocumentWeight
	Snippets []Snippet
}

// WeightSumTolerance bounds how far a document's topic weights may sum
// from 1.
const WeightSumTolerance = 1e-6

// Validate checks the referential and rank invariants of a run before any
// row is written.
func (r Run) Validate() error {
	m := r.Model
	if m.ID == "" || m.CorpusID == "" {
		return invalid("model id and corpus id are required")
	}
	if m.K < 1 || len(r.Topics) != m.K {
		return invalid("model has k=%d but %d topics", m.K, len(r.Topics))
	}

	topics := make(map[string]struct{}, len(r.Topics))
	ranks := make([]bool, m.K)
	for _, t := range r.Topics {
		if t.ID == "" {
			return invalid("topic without id")
		}
		if t.ModelID != m.ID {
			return invalid("topic %s belongs to model %q", t.ID, t.ModelID)
		}
		if _, dup := topics[t.ID]; dup {
			return invalid("duplicate topic id %s", t.ID)
		}
		topics[t.ID] = struct{}{}
		if t.Rank < 0 || t.Rank >= m.K || ranks[t.Rank] {
			return invalid("topic %s has rank %d, ranks must be distinct in [0,%d)", t.ID, t.Rank, m.K)
		}
		ranks[t.Rank] = true
	}

	sums := make(map[string]float64)
	for _, w := range r.Weights {
		if w.ModelID != m.ID {
			return invalid("weight for %s belongs to model %q", w.DocumentID, w.ModelID)
		}
		if _, ok := topics[w.TopicID]; !ok {
			return invalid("weight for %s names unknown topic %s", w.DocumentID, w.TopicID)
		}
		if w.Weight < 0 || math.IsNaN(w.Weight) {
			return invalid("weight for %s is %v", w.DocumentID, w.Weight)
		}
		sums[w.DocumentID] += w.Weight
	}
	for doc, s := range sums {
		if math.Abs(s-1) > WeightSumTolerance {
			return invalid("weights of document %s sum to %v", doc, s)
		}
	}

	for _, s := range r.Snippets {
		if s.ID == "" {
			return invalid("snippet without id")
		}
		if s.ModelID != m.ID {
			return invalid("snippet %s belongs to model %q", s.ID, s.ModelID)
		}
		if _, ok := topics[s.TopicID]; !ok {
			return invalid("snippet %s names unknown topic %s", s.ID, s.TopicID)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %w", internalerr.ErrInvalidInput, fmt.Errorf(format, args...))
}
