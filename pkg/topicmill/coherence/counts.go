package coherence

import (
	"math"
	"slices"
)

// pair is two vocabulary indices, lower first.
type pair [2]int

// counts holds document frequencies and document co-occurrence counts of
// the vocabulary terms. Tokens outside the vocabulary are ignored.
type counts struct {
	docs  int
	index map[string]int
	df    []int
	joint map[pair]int
}

func newCounts(docs [][]string, vocab []string) *counts {
	c := &counts{
		index: make(map[string]int, len(vocab)),
		df:    make([]int, len(vocab)),
		joint: make(map[pair]int),
	}
	for i, t := range vocab {
		c.index[t] = i
	}

	seen := make([]bool, len(vocab))
	var present []int
	for _, d := range docs {
		c.docs++
		present = present[:0]
		for _, t := range d {
			i, ok := c.index[t]
			if !ok || seen[i] {
				continue
			}
			seen[i] = true
			present = append(present, i)
		}
		slices.Sort(present)
		for a, i := range present {
			seen[i] = false
			c.df[i]++
			for _, j := range present[a+1:] {
				c.joint[pair{i, j}]++
			}
		}
	}
	return c
}

// docFreq returns how many documents contain t.
func (c *counts) docFreq(t string) int {
	if i, ok := c.index[t]; ok {
		return c.df[i]
	}
	return 0
}

// together returns how many documents contain both terms.
func (c *counts) together(a, b string) int {
	i, okA := c.index[a]
	j, okB := c.index[b]
	if !okA || !okB || i == j {
		return 0
	}
	if i > j {
		i, j = j, i
	}
	return c.joint[pair{i, j}]
}

// npmi is PMI normalised by -log P(a,b), both from document counts with
// one added to the joint and marginal counts:
//
//	log((n_ab+1) N / ((n_a+1)(n_b+1))) / -log((n_ab+1) / N)
//
// Terms that never share a document score 0.
func (c *counts) npmi(a, b string) float64 {
	nab := c.together(a, b)
	if nab == 0 || c.docs == 0 {
		return 0
	}
	n := float64(c.docs)
	joint := float64(nab) + 1
	logPAB := math.Log(joint / n)
	if logPAB == 0 {
		return 0
	}
	pmi := math.Log(joint * n / ((float64(c.docFreq(a)) + 1) * (float64(c.docFreq(b)) + 1)))
	return pmi / -logPAB
}
