// Package selector fits one factorization per candidate topic count and
// keeps the most coherent.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/topicmill/pkg/topicmill/coherence"
	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/nmf"
	"github.com/cognicore/topicmill/pkg/topicmill/vectorize"
)

// Options configures the grid search.
type Options struct {
	KGrid        []int
	TopWords     int
	Factorizer   nmf.Options
	Concurrency  int     // <= 0 means GOMAXPROCS
	TieTolerance float64 // relative; scores within this fraction of the best are ties
	Logger       zerolog.Logger
	// OnCandidate is called once per finished candidate, never concurrently.
	OnCandidate func(Candidate)
}

// Candidate is the outcome of fitting one K.
type Candidate struct {
	K              int
	Coherence      float64
	TopicCoherence []float64
	Factors        *nmf.Factors
	TopTerms       [][]coherence.Term
	Elapsed        time.Duration
	Err            error
}

// OK reports whether the candidate produced a usable model.
func (c Candidate) OK() bool { return c.Err == nil }

// Result holds the winner and every attempted candidate in ascending K.
type Result struct {
	Best       Candidate
	Candidates []Candidate
}

// Select fits every distinct K of the grid, up to Concurrency at a time.
// A failing K is recorded and skipped; the run fails only when every K
// fails or ctx is done. The highest coherence wins, and a score that beats
// the current best by no more than TieTolerance times its magnitude does not
// displace a smaller K.
func Select(ctx context.Context, m *vectorize.Matrix, scorer *coherence.Scorer, opts Options) (Result, error) {
	grid := slices.Clone(opts.KGrid)
	slices.Sort(grid)
	grid = slices.Compact(grid)
	if len(grid) == 0 {
		return Result{}, fmt.Errorf("empty k grid: %w", internalerr.ErrInvalidInput)
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger

	cands := make([]Candidate, len(grid))
	var (
		g      errgroup.Group
		hookMu sync.Mutex
	)
	g.SetLimit(limit)
	for i, k := range grid {
		g.Go(func() error {
			c := fit(ctx, m, scorer, k, opts)
			cands[i] = c
			if c.Err != nil && ctx.Err() == nil {
				log.Warn().Int("k", k).Err(c.Err).Msg("candidate fit failed")
			} else if c.Err == nil {
				log.Debug().Int("k", k).Float64("coherence", c.Coherence).
					Dur("elapsed", c.Elapsed).Msg("candidate scored")
			}
			if opts.OnCandidate != nil {
				hookMu.Lock()
				opts.OnCandidate(c)
				hookMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{Candidates: cands}, internalerr.Canceled(err)
	}

	best, err := choose(cands, opts.TieTolerance)
	res := Result{Best: best, Candidates: cands}
	if err != nil {
		return res, err
	}

	for _, c := range cands {
		if c.OK() && c.K != res.Best.K {
			log.Info().Int("k", c.K).Float64("coherence", c.Coherence).Msg("candidate rejected")
		}
	}
	return res, nil
}

// choose picks the winner among candidates sorted by ascending K.
func choose(cands []Candidate, tol float64) (Candidate, error) {
	var (
		best    Candidate
		found   bool
		fitErrs []error
	)
	for _, c := range cands {
		if !c.OK() {
			fitErrs = append(fitErrs, &internalerr.FitError{K: c.K, Err: c.Err})
			continue
		}
		if !found || c.Coherence > best.Coherence+tol*math.Abs(best.Coherence) {
			best = c
			found = true
		}
	}
	if !found {
		return Candidate{}, fmt.Errorf("all %d candidate topic counts failed: %w", len(cands), errors.Join(fitErrs...))
	}
	return best, nil
}

func fit(ctx context.Context, m *vectorize.Matrix, scorer *coherence.Scorer, k int, opts Options) Candidate {
	start := time.Now()
	c := Candidate{K: k}
	if err := ctx.Err(); err != nil {
		c.Err = err
		return c
	}

	f, err := nmf.Fit(ctx, m.X, k, opts.Factorizer)
	c.Elapsed = time.Since(start)
	if err != nil {
		c.Err = err
		return c
	}
	c.Factors = f
	c.TopTerms = coherence.TopTerms(f.H, m.Vocabulary, opts.TopWords)
	c.Coherence, c.TopicCoherence = scorer.ScoreFit(f.H, c.TopTerms)
	return c
}
