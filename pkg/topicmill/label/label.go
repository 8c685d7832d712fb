// Package label turns the topic-term factor into readable topics.
package label

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/coherence"
)

// Topic is a labeled topic before persistence. Index is the topic's row in
// the factorization.
type Topic struct {
	Index    int
	Label    string
	Terms    []coherence.Term // display forms, heaviest first
	Coverage float64
	Rank     int
}

// Build labels every topic, attaches its share of corpus mass, and ranks
// topics by coverage (largest first, ties by index). The label is the first
// n display terms joined by ", " with phrase joiners shown as spaces.
func Build(topTerms [][]coherence.Term, docTopics mat.Matrix, display func(string) string, n int) []Topic {
	if display == nil {
		display = func(s string) string { return s }
	}
	coverage := Coverage(docTopics)

	topics := make([]Topic, len(topTerms))
	for i, terms := range topTerms {
		shown := make([]coherence.Term, len(terms))
		for j, t := range terms {
			shown[j] = coherence.Term{Term: display(t.Term), Weight: t.Weight}
		}
		topics[i] = Topic{
			Index: i,
			Label: labelFor(i, shown, n),
			Terms: shown,
		}
		if i < len(coverage) {
			topics[i].Coverage = coverage[i]
		}
	}

	order := make([]int, len(topics))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return topics[order[a]].Coverage > topics[order[b]].Coverage
	})
	for rank, i := range order {
		topics[i].Rank = rank
	}
	return topics
}

func labelFor(index int, terms []coherence.Term, n int) string {
	if len(terms) == 0 {
		return fmt.Sprintf("topic %d", index+1)
	}
	if n > len(terms) {
		n = len(terms)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = strings.ReplaceAll(terms[i].Term, "_", " ")
	}
	return strings.Join(parts, ", ")
}

// Coverage returns each topic's share of the document-topic mass. With
// normalised rows the shares sum to 1; all-zero rows (documents assigned to
// no topic) add nothing.
func Coverage(docTopics mat.Matrix) []float64 {
	if docTopics == nil {
		return nil
	}
	n, k := docTopics.Dims()
	out := make([]float64, k)
	if n == 0 {
		return out
	}
	var total float64
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			out[c] += docTopics.At(i, c)
			total += docTopics.At(i, c)
		}
	}
	if total == 0 {
		return out
	}
	for c := range out {
		out[c] /= total
	}
	return out
}
