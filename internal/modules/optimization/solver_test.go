package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// minVarianceQP builds min wᵀΣw s.t. Σw = 1, 0 ≤ w ≤ upper.
func minVarianceQP(sigma []float64, n int, upper float64) *QuadraticProgram {
	q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			q.SetSym(i, j, 2*sigma[i*n+j])
		}
	}
	ones := make([]float64, n)
	lower := make([]float64, n)
	up := make([]float64, n)
	for i := range ones {
		ones[i] = 1
		up[i] = upper
	}
	return &QuadraticProgram{
		Q: q,
		Constraints: Constraints{
			Aeq:   mat.NewDense(1, n, ones),
			Beq:   []float64{1},
			Lower: lower,
			Upper: up,
		},
	}
}

var twoAssetSigma = []float64{0.04, 0.01, 0.01, 0.09}

func TestPGD_MinVarianceInterior(t *testing.T) {
	qp := minVarianceQP(twoAssetSigma, 2, 1)

	sol, err := NewPGD().Solve(context.Background(), qp)
	require.NoError(t, err)

	// Closed form: w1 = (σ2² − σ12) / (σ1² + σ2² − 2σ12)
	assert.InDelta(t, 0.08/0.11, sol.X[0], 1e-6)
	assert.InDelta(t, 1.0, sol.X[0]+sol.X[1], 1e-9)
	assert.NoError(t, verify(qp, sol.X))
}

func TestPGD_CapBinds(t *testing.T) {
	qp := minVarianceQP(twoAssetSigma, 2, 0.6)

	sol, err := NewPGD().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, sol.X[0], 1e-6)
	assert.InDelta(t, 0.4, sol.X[1], 1e-6)
}

func TestPGD_TargetReturnInequality(t *testing.T) {
	mu := []float64{0.08, 0.12}
	qp := minVarianceQP(twoAssetSigma, 2, 1)
	qp.G = mat.NewDense(1, 2, []float64{-mu[0], -mu[1]})
	qp.H = []float64{-0.10}

	sol, err := NewPGD().Solve(context.Background(), qp)
	require.NoError(t, err)

	ret := mu[0]*sol.X[0] + mu[1]*sol.X[1]
	assert.InDelta(t, 0.10, ret, 1e-4)
	assert.InDelta(t, 0.5, sol.X[0], 1e-3)
}

func TestPGD_InfeasibleBounds(t *testing.T) {
	qp := minVarianceQP(twoAssetSigma, 2, 0.3)

	_, err := NewPGD().Solve(context.Background(), qp)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestPGD_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPGD().Solve(ctx, minVarianceQP(twoAssetSigma, 2, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPenalty_MinVariance(t *testing.T) {
	qp := minVarianceQP(twoAssetSigma, 2, 1)

	sol, err := NewPenalty().Solve(context.Background(), qp)
	require.NoError(t, err)
	assert.InDelta(t, 0.08/0.11, sol.X[0], 1e-3)
	assert.InDelta(t, 1.0, sol.X[0]+sol.X[1], 1e-9)
}

func TestSimplex_SmallLP(t *testing.T) {
	lp := &LinearProgram{
		C: []float64{-1, -2},
		Constraints: Constraints{
			Aeq:   mat.NewDense(1, 2, []float64{1, 1}),
			Beq:   []float64{1},
			Lower: []float64{0, 0},
			Upper: []float64{1, 1},
		},
	}

	sol, err := NewSimplex().Solve(context.Background(), lp)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sol.X[0], 1e-9)
	assert.InDelta(t, 1.0, sol.X[1], 1e-9)
	assert.InDelta(t, -2.0, sol.Objective, 1e-9)

	lp.G = mat.NewDense(1, 2, []float64{0, 1})
	lp.H = []float64{0.4}
	sol, err = NewSimplex().Solve(context.Background(), lp)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, sol.X[0], 1e-9)
	assert.InDelta(t, 0.4, sol.X[1], 1e-9)
}

func TestSimplex_FreeVariable(t *testing.T) {
	// min z s.t. z ≥ 0.3 − x, z ≥ x − 0.5, 0 ≤ x ≤ 1, z free.
	lp := &LinearProgram{
		C: []float64{0, 1},
		Constraints: Constraints{
			G:     mat.NewDense(2, 2, []float64{-1, -1, 1, -1}),
			H:     []float64{-0.3, 0.5},
			Lower: []float64{0, math.Inf(-1)},
			Upper: []float64{1, math.Inf(1)},
		},
	}

	sol, err := NewSimplex().Solve(context.Background(), lp)
	require.NoError(t, err)
	assert.InDelta(t, -0.1, sol.Objective, 1e-9)
	assert.NoError(t, verify(lp, sol.X))
}

func TestSimplex_WarmStart(t *testing.T) {
	build := func(start []float64) *LinearProgram {
		return &LinearProgram{
			C:     []float64{0, 1},
			Start: start,
			Constraints: Constraints{
				G:     mat.NewDense(2, 2, []float64{-1, -1, 1, -1}),
				H:     []float64{-0.3, 0.5},
				Lower: []float64{0, math.Inf(-1)},
				Upper: []float64{1, math.Inf(1)},
			},
		}
	}

	cold, err := NewSimplex().Solve(context.Background(), build(nil))
	require.NoError(t, err)

	for _, start := range [][]float64{
		{0.3, 0},   // vertex
		{1, 0.5},   // vertex with z basic
		{0.5, 0.2}, // feasible but not a vertex
		{0, -1},    // infeasible
		{0.5},      // wrong length
	} {
		warm, err := NewSimplex().Solve(context.Background(), build(start))
		require.NoError(t, err, "start %v", start)
		assert.InDelta(t, cold.Objective, warm.Objective, 1e-9, "start %v", start)
		assert.NoError(t, verify(build(nil), warm.X))
	}
}

func TestSimplex_ScenarioTailProgram(t *testing.T) {
	// min z + Σu/((1-α)T) over two assets, where every fifth scenario
	// crashes the second one.
	const T = 60
	const alpha = 0.9
	dim := 2 + 1 + T
	c := make([]float64, dim)
	c[2] = 1
	g := mat.NewDense(T, dim, nil)
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range upper {
		upper[i] = math.Inf(1)
	}
	lower[2] = math.Inf(-1)
	for s := 0; s < T; s++ {
		c[3+s] = 1 / ((1 - alpha) * T)
		risky := 0.02
		if s%5 == 0 {
			risky = -0.10
		}
		g.Set(s, 0, -0.001)
		g.Set(s, 1, -risky)
		g.Set(s, 2, -1)
		g.Set(s, 3+s, -1)
	}
	prog := &LinearProgram{
		C: c,
		Constraints: Constraints{
			Aeq:   mat.NewDense(1, dim, append([]float64{1, 1}, make([]float64, dim-2)...)),
			Beq:   []float64{1},
			G:     g,
			H:     make([]float64, T),
			Lower: lower,
			Upper: upper,
		},
	}

	sol, err := NewSimplex().Solve(context.Background(), prog)
	require.NoError(t, err)
	require.NoError(t, verify(prog, sol.X))
	// The safe asset alone gains 0.1% in every scenario, so its tail loss is negative.
	assert.InDelta(t, 1.0, sol.X[0], 1e-9)
	assert.InDelta(t, -0.001, sol.Objective, 1e-9)
}

func TestPseudoInverse(t *testing.T) {
	t.Run("invertible", func(t *testing.T) {
		a := mat.NewDense(2, 2, []float64{4, 1, 1, 3})
		pinv, err := PseudoInverse(a)
		require.NoError(t, err)

		var id mat.Dense
		id.Mul(a, pinv)
		assert.InDelta(t, 1.0, id.At(0, 0), 1e-12)
		assert.InDelta(t, 0.0, id.At(0, 1), 1e-12)
		assert.InDelta(t, 1.0, id.At(1, 1), 1e-12)
	})

	t.Run("singular", func(t *testing.T) {
		a := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
		pinv, err := PseudoInverse(a)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				assert.InDelta(t, 0.25, pinv.At(i, j), 1e-12)
			}
		}
	})

	t.Run("solve linear", func(t *testing.T) {
		x, err := SolveLinear(mat.NewDense(2, 2, []float64{2, 0, 0, 4}), []float64{2, 2})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{1, 0.5}, x, 1e-12)
	})
}

func TestConstraints_Violation(t *testing.T) {
	c := Constraints{
		Aeq:   mat.NewDense(1, 2, []float64{1, 1}),
		Beq:   []float64{1},
		Lower: []float64{0, math.Inf(-1)},
		Upper: []float64{1, math.Inf(1)},
	}
	assert.Equal(t, 0.0, c.Violation([]float64{0.5, 0.5}))
	assert.InDelta(t, 0.25, c.Violation([]float64{1, 0.5}), 1e-12)
	assert.InDelta(t, 0.1, c.Violation([]float64{-0.1, 1.1}), 1e-12)
	assert.True(t, math.IsInf(c.Violation([]float64{math.NaN(), 1}), 1))

	assert.Error(t, c.Validate(3))
	assert.NoError(t, c.Validate(2))
}

func TestQuadForm(t *testing.T) {
	q := mat.NewSymDense(2, twoAssetSigma)
	assert.InDelta(t, 0.25*0.04+0.25*0.09+2*0.25*0.01, QuadForm(q, []float64{0.5, 0.5}), 1e-15)
}

func TestProjectCappedSimplex(t *testing.T) {
	x, err := ProjectCappedSimplex([]float64{1.0 / 3, 1.0 / 3, 1.0 / 3, 0, 0}, 0.25)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25, 0.125, 0.125}, x, 1e-9)

	_, err = ProjectCappedSimplex([]float64{0.5, 0.5}, 0.4)
	assert.ErrorIs(t, err, ErrInfeasible)
}
