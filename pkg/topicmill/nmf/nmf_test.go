package nmf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
)

// blocks builds a matrix with two disjoint rank-one groups of rows and
// columns.
func blocks() *mat.Dense {
	u, v := []float64{1, 2, 3}, []float64{1, 1, 2}
	p, q := []float64{2, 1, 1}, []float64{3, 1, 2}
	x := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			x.Set(i, j, u[i]*v[j])
			x.Set(i+3, j+3, p[i]*q[j])
		}
	}
	return x
}

func TestFitRecoversBlocks(t *testing.T) {
	x := blocks()
	f, err := Fit(context.Background(), x, 2, Options{MaxIter: 500, Seed: 42, Tol: 1e-6, Restarts: 3})
	require.NoError(t, err)

	assert.Less(t, f.Err/mat.Norm(x, 2), 0.05)
	assert.Positive(t, f.Iter)

	for _, m := range []*mat.Dense{f.W, f.H} {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				assert.GreaterOrEqual(t, m.At(i, j), 0.0)
			}
		}
	}

	// Rows of the same block load on the same topic.
	top := func(i int) int {
		if f.W.At(i, 0) >= f.W.At(i, 1) {
			return 0
		}
		return 1
	}
	assert.Equal(t, top(0), top(1))
	assert.Equal(t, top(0), top(2))
	assert.Equal(t, top(3), top(4))
	assert.NotEqual(t, top(0), top(3))
}

func direct(x mat.Matrix, w, h *mat.Dense) float64 {
	var wh, r mat.Dense
	wh.Mul(w, h)
	r.Sub(x, &wh)
	return mat.Norm(&r, 2)
}

func TestResidualMatchesDirectNorm(t *testing.T) {
	x := blocks()
	w := mat.NewDense(6, 2, []float64{1, 0.5, 2, 0, 0.3, 1, 0, 2, 1, 1, 0.2, 0})
	h := mat.NewDense(2, 6, []float64{1, 2, 0, 0.5, 1, 0, 0, 0.1, 3, 1, 0, 2})

	var wtx, wtw, hht mat.Dense
	wtx.Mul(w.T(), x)
	wtw.Mul(w.T(), w)
	hht.Mul(h, h.T())
	xx := mat.Norm(x, 2) * mat.Norm(x, 2)

	assert.InDelta(t, direct(x, w, h), residual(xx, h, &wtx, &wtw, &hht), 1e-9)
}

func TestFitReportsResidualNorm(t *testing.T) {
	x := blocks()
	f, err := Fit(context.Background(), x, 2, Options{MaxIter: 500, Seed: 3, Restarts: 2})
	require.NoError(t, err)
	assert.InDelta(t, direct(x, f.W, f.H), f.Err, 1e-6)
}

func TestFitIsReproducible(t *testing.T) {
	x := blocks()
	opts := Options{MaxIter: 300, Seed: 7, Restarts: 2}
	a, err := Fit(context.Background(), x, 2, opts)
	require.NoError(t, err)
	b, err := Fit(context.Background(), x, 2, opts)
	require.NoError(t, err)

	assert.True(t, mat.Equal(a.W, b.W))
	assert.True(t, mat.Equal(a.H, b.H))
	assert.Equal(t, a.Err, b.Err)
}

func TestFitInvalidK(t *testing.T) {
	x := blocks()
	for _, k := range []int{0, -1, 7} {
		_, err := Fit(context.Background(), x, k, Options{})
		assert.ErrorIs(t, err, internalerr.ErrInvalidInput, "k=%d", k)
	}
}

func TestFitNotConverged(t *testing.T) {
	_, err := Fit(context.Background(), blocks(), 2, Options{MaxIter: 1, Restarts: 2})
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestFitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fit(ctx, blocks(), 2, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDocumentTopics(t *testing.T) {
	f := &Factors{W: mat.NewDense(3, 2, []float64{
		3, 1,
		0, 0,
		0, 2,
	})}
	dt := f.DocumentTopics()

	assert.InDelta(t, 0.75, dt.At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, dt.At(0, 1), 1e-12)
	assert.Equal(t, []float64{0, 0}, mat.Row(nil, 1, dt), "unassigned rows stay empty")
	assert.Equal(t, []float64{0, 1}, mat.Row(nil, 2, dt))
	assert.Equal(t, 3.0, f.W.At(0, 0), "W is not modified")
}
