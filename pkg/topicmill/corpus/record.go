package corpus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

// Record is one harvested document as produced by the upstream harvester.
// The pipeline never mutates or re-fetches records.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Source supplies the candidate records of a corpus snapshot.
type Source interface {
	Documents(ctx context.Context, corpusID string) ([]Record, error)
}

// MemorySource serves records held in memory, keyed by corpus id.
type MemorySource struct {
	mu      sync.RWMutex
	corpora map[string][]Record
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{corpora: make(map[string][]Record)}
}

// Put replaces the records of a corpus.
func (s *MemorySource) Put(corpusID string, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpora[corpusID] = append([]Record(nil), records...)
}

// Documents implements Source.
func (s *MemorySource) Documents(ctx context.Context, corpusID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.corpora[corpusID]
	if !ok {
		return nil, fmt.Errorf("corpus %q: %w", corpusID, internalerr.ErrNotFound)
	}
	return append([]Record(nil), records...), nil
}
