// Package nmf factorizes a non-negative matrix X (documents x terms) into
// W (documents x topics) and H (topics x terms) with hierarchical
// alternating least squares.
package nmf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

var (
	ErrNotConverged = errors.New("factorization did not converge")
	ErrNumerical    = errors.New("factorization produced non-finite values")
)

// restartStride spreads the seeds of successive restarts.
const restartStride = 7919

// Options configures a fit. Zero values take the defaults below.
type Options struct {
	MaxIter  int     // default 500
	Seed     int64   // default 0
	Tol      float64 // relative error decrease, default 1e-4
	Restarts int     // default 1
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 500
	}
	if o.Tol <= 0 {
		o.Tol = 1e-4
	}
	if o.Restarts <= 0 {
		o.Restarts = 1
	}
	return o
}

// Factors is a converged factorization. Err is the Frobenius norm of the
// residual X - WH.
type Factors struct {
	W    *mat.Dense
	H    *mat.Dense
	Err  float64
	Iter int
}

// Fit factorizes x into k components. Each restart starts from its own
// seeded random initialisation; the converged restart with the lowest
// residual wins. Fit is deterministic for fixed inputs.
func Fit(ctx context.Context, x mat.Matrix, k int, opts Options) (*Factors, error) {
	n, m := x.Dims()
	if k < 1 || k > n || k > m {
		return nil, fmt.Errorf("k=%d for a %dx%d matrix: %w", k, n, m, internalerr.ErrInvalidInput)
	}
	opts = opts.withDefaults()
	xx := math.Pow(mat.Norm(x, 2), 2)

	var (
		best    *Factors
		lastErr error
	)
	for r := 0; r < opts.Restarts; r++ {
		f, err := fitOnce(ctx, x, xx, k, opts.Seed*restartStride+int64(r), opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			continue
		}
		if best == nil || f.Err < best.Err {
			best = f
		}
	}
	if best == nil {
		return nil, lastErr
	}
	return best, nil
}

// fitOnce runs one seeded fit. xx is the squared Frobenius norm of x.
func fitOnce(ctx context.Context, x mat.Matrix, xx float64, k int, seed int64, opts Options) (*Factors, error) {
	n, m := x.Dims()
	rng := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))

	// Scale the random start so WH has the same mean as X.
	avg := math.Sqrt(mat.Sum(x) / float64(n*m) / float64(k))
	h := mat.NewDense(k, m, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < m; j++ {
			h.Set(i, j, avg*math.Abs(rng.NormFloat64()))
		}
	}
	w := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			w.Set(i, j, avg*math.Abs(rng.NormFloat64()))
		}
	}

	var xht, hht, wtx, wtw mat.Dense
	wtx.Mul(w.T(), x)
	wtw.Mul(w.T(), w)
	hht.Mul(h, h.T())
	initErr := residual(xx, h, &wtx, &wtw, &hht)
	if initErr == 0 {
		return &Factors{W: w, H: h}, nil
	}
	prev := initErr

	for it := 0; it < opts.MaxIter; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		xht.Mul(x, h.T())
		updateW(w, &xht, &hht)

		wtx.Mul(w.T(), x)
		wtw.Mul(w.T(), w)
		updateH(h, &wtx, &wtw)
		hht.Mul(h, h.T())

		e := residual(xx, h, &wtx, &wtw, &hht)
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return nil, fmt.Errorf("iteration %d: %w", it+1, ErrNumerical)
		}
		if it > 0 && (prev-e)/initErr < opts.Tol {
			return &Factors{W: w, H: h, Err: e, Iter: it + 1}, nil
		}
		prev = e
	}
	return nil, fmt.Errorf("%w within %d iterations (seed %d)", ErrNotConverged, opts.MaxIter, seed)
}

// updateW runs one coordinate-descent sweep over the columns of W given
// XH' and HH'.
func updateW(w *mat.Dense, xht, hht *mat.Dense) {
	n, k := w.Dims()
	for c := 0; c < k; c++ {
		d := hht.At(c, c)
		if d <= 0 {
			continue
		}
		for i := 0; i < n; i++ {
			g := xht.At(i, c)
			for l := 0; l < k; l++ {
				g -= w.At(i, l) * hht.At(l, c)
			}
			w.Set(i, c, math.Max(0, w.At(i, c)+g/d))
		}
	}
}

// updateH runs one sweep over the rows of H given W'X and W'W.
func updateH(h *mat.Dense, wtx, wtw *mat.Dense) {
	k, m := h.Dims()
	for c := 0; c < k; c++ {
		d := wtw.At(c, c)
		if d <= 0 {
			continue
		}
		for j := 0; j < m; j++ {
			g := wtx.At(c, j)
			for l := 0; l < k; l++ {
				g -= wtw.At(c, l) * h.At(l, j)
			}
			h.Set(c, j, math.Max(0, h.At(c, j)+g/d))
		}
	}
}

// residual returns ||X - WH|| without forming WH, expanding the square as
// ||X||^2 - 2<H, W'X> + <W'W, HH'>. wtx and wtw must belong to the current W
// and hht to the current H.
func residual(xx float64, h, wtx, wtw, hht *mat.Dense) float64 {
	k, _ := h.Dims()
	var cross, gram float64
	for c := 0; c < k; c++ {
		hr, xr := h.RawRowView(c), wtx.RawRowView(c)
		for j, v := range hr {
			cross += v * xr[j]
		}
		for l := 0; l < k; l++ {
			gram += wtw.At(c, l) * hht.At(c, l)
		}
	}
	// Rounding can push a near-exact fit slightly below zero.
	return math.Sqrt(math.Max(0, xx-2*cross+gram))
}

// DocumentTopics returns W with each row scaled to sum to 1. A row with no
// weight at all stays zero: that document belongs to no topic.
func (f *Factors) DocumentTopics() *mat.Dense {
	n, k := f.W.Dims()
	out := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		row := f.W.RawRowView(i)
		var sum float64
		for _, v := range row {
			sum += v
		}
		if sum == 0 {
			continue
		}
		for c := 0; c < k; c++ {
			out.Set(i, c, row[c]/sum)
		}
	}
	return out
}
