// Package coherence scores how well the top terms of each topic co-occur in
// the corpus.
package coherence

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// negligible is the share of a topic's largest weight below which a term is
// not considered part of the topic.
const negligible = 1e-3

// Term is a topic term with its topic-term weight.
type Term struct {
	Term   string
	Weight float64
}

// TopTerms returns up to n terms per row of h, heaviest first with ties
// broken by term. Terms with negligible weight are omitted, so a topic may
// have fewer than n terms.
func TopTerms(h mat.Matrix, vocab []string, n int) [][]Term {
	k, m := h.Dims()
	out := make([][]Term, k)
	for c := 0; c < k; c++ {
		var rowMax float64
		for j := 0; j < m; j++ {
			rowMax = max(rowMax, h.At(c, j))
		}
		floor := negligible * rowMax

		var terms []Term
		for j := 0; j < m; j++ {
			if v := h.At(c, j); v > 0 && v >= floor {
				terms = append(terms, Term{Term: vocab[j], Weight: v})
			}
		}
		sort.Slice(terms, func(a, b int) bool {
			if terms[a].Weight != terms[b].Weight {
				return terms[a].Weight > terms[b].Weight
			}
			return terms[a].Term < terms[b].Term
		})
		if len(terms) > n {
			terms = terms[:n]
		}
		out[c] = terms
	}
	return out
}

// Words drops the weights.
func Words(topics [][]Term) [][]string {
	out := make([][]string, len(topics))
	for i, terms := range topics {
		out[i] = make([]string, len(terms))
		for j, t := range terms {
			out[i][j] = t.Term
		}
	}
	return out
}

// Scorer computes NPMI coherence from document co-occurrence counts.
type Scorer struct {
	counts *counts
}

// NewScorer counts co-occurrence of the vocabulary terms across docs.
func NewScorer(docs [][]string, vocab []string) *Scorer {
	return &Scorer{counts: newCounts(docs, vocab)}
}

// Score returns the mean topic coherence and the per-topic scores. A topic's
// coherence is the mean NPMI over its term pairs; topics with fewer than two
// terms score 0. The scorer is safe for concurrent use.
func (s *Scorer) Score(topics [][]string) (float64, []float64) {
	if len(topics) == 0 {
		return 0, nil
	}
	per := make([]float64, len(topics))
	for i, terms := range topics {
		per[i] = s.topic(terms)
	}
	return mean(per), per
}

// ScoreFit scores a factorization with topic-term factor h and top terms
// topics. Each topic's NPMI is scaled by the share of its row of h held by
// its top terms: a topic blending two themes keeps much of its weight
// outside its top terms even when those terms agree.
func (s *Scorer) ScoreFit(h mat.Matrix, topics [][]Term) (float64, []float64) {
	if len(topics) == 0 {
		return 0, nil
	}
	_, per := s.Score(Words(topics))
	for i, share := range Shares(h, topics) {
		per[i] *= share
	}
	return mean(per), per
}

// Shares returns, per row of h, the fraction of the row's total weight
// carried by topics[row]. Empty rows have share 0.
func Shares(h mat.Matrix, topics [][]Term) []float64 {
	_, m := h.Dims()
	out := make([]float64, len(topics))
	for c, terms := range topics {
		var row float64
		for j := 0; j < m; j++ {
			row += h.At(c, j)
		}
		if row <= 0 {
			continue
		}
		var top float64
		for _, t := range terms {
			top += t.Weight
		}
		out[c] = min(1, top/row)
	}
	return out
}

func (s *Scorer) topic(terms []string) float64 {
	if len(terms) < 2 {
		return 0
	}
	var (
		sum   float64
		pairs int
	)
	for a := 0; a < len(terms); a++ {
		for b := a + 1; b < len(terms); b++ {
			sum += s.counts.npmi(terms[a], terms[b])
			pairs++
		}
	}
	return sum / float64(pairs)
}

func mean(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
