// Package vectorize builds the document-term matrix the factorization runs on.
package vectorize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

// TFIDF bounds the vocabulary by document frequency and weights counts by
// smoothed inverse document frequency.
type TFIDF struct {
	MinDF       int
	MaxDF       float64 // fraction of documents
	MaxFeatures int     // 0 means unbounded
}

// Matrix is a fitted document-term matrix. Row i of X belongs to input
// document Rows[i]; column j to Vocabulary[j].
type Matrix struct {
	X          *mat.Dense
	Vocabulary []string
	Index      map[string]int
	DF         []int
	Rows       []int
	Dropped    int // input documents with no vocabulary term
	Documents  int // input documents
}

// Fit builds the matrix from per-document token sequences.
func (v TFIDF) Fit(tokens [][]string) (*Matrix, error) {
	n := len(tokens)
	if n == 0 {
		return nil, fmt.Errorf("no documents: %w", internalerr.ErrDegenerateVocabulary)
	}

	df := make(map[string]int)
	freq := make(map[string]int)
	for _, doc := range tokens {
		seen := make(map[string]struct{}, len(doc))
		for _, t := range doc {
			freq[t]++
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	maxDocs := v.MaxDF * float64(n)
	var vocab []string
	for t, d := range df {
		if d >= v.MinDF && float64(d) <= maxDocs {
			vocab = append(vocab, t)
		}
	}
	if v.MaxFeatures > 0 && len(vocab) > v.MaxFeatures {
		sort.Slice(vocab, func(i, j int) bool {
			if freq[vocab[i]] != freq[vocab[j]] {
				return freq[vocab[i]] > freq[vocab[j]]
			}
			return vocab[i] < vocab[j]
		})
		vocab = vocab[:v.MaxFeatures]
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("no term within document frequency bounds [%d, %.2f] over %d documents: %w",
			v.MinDF, v.MaxDF, n, internalerr.ErrDegenerateVocabulary)
	}
	sort.Strings(vocab)

	index := make(map[string]int, len(vocab))
	dfs := make([]int, len(vocab))
	idf := make([]float64, len(vocab))
	for j, t := range vocab {
		index[t] = j
		dfs[j] = df[t]
		idf[j] = math.Log(float64(1+n)/float64(1+df[t])) + 1
	}

	var (
		data []float64
		rows []int
	)
	for i, doc := range tokens {
		row := make([]float64, len(vocab))
		hit := false
		for _, t := range doc {
			if j, ok := index[t]; ok {
				row[j]++
				hit = true
			}
		}
		if !hit {
			continue
		}
		var norm float64
		for j := range row {
			row[j] *= idf[j]
			norm += row[j] * row[j]
		}
		norm = math.Sqrt(norm)
		for j := range row {
			row[j] /= norm
		}
		data = append(data, row...)
		rows = append(rows, i)
	}

	return &Matrix{
		X:          mat.NewDense(len(rows), len(vocab), data),
		Vocabulary: vocab,
		Index:      index,
		DF:         dfs,
		Rows:       rows,
		Dropped:    n - len(rows),
		Documents:  n,
	}, nil
}

// Tokens restricts each document's tokens to the vocabulary, keeping only
// the rows present in the matrix.
func (m *Matrix) Tokens(tokens [][]string) [][]string {
	out := make([][]string, len(m.Rows))
	for r, i := range m.Rows {
		for _, t := range tokens[i] {
			if _, ok := m.Index[t]; ok {
				out[r] = append(out[r], t)
			}
		}
	}
	return out
}
