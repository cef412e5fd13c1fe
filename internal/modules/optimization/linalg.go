package optimization

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errSVD = errors.New("singular value decomposition failed")

// PseudoInverse returns the Moore-Penrose inverse of a. Singular values below
// max(rows, cols)·eps·σmax are treated as zero.
func PseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	r, c := a.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errSVD
	}
	values := svd.Values(nil)

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	smax := 0.0
	for _, s := range values {
		smax = math.Max(smax, s)
	}
	cutoff := float64(max(r, c)) * eps * smax

	inv := make([]float64, len(values))
	for i, s := range values {
		if s > cutoff {
			inv[i] = 1 / s
		}
	}

	// pinv = V · diag(1/s) · Uᵀ
	var vs mat.Dense
	vs.Apply(func(_, j int, x float64) float64 { return x * inv[j] }, &v)

	out := mat.NewDense(c, r, nil)
	out.Mul(&vs, u.T())
	return out, nil
}

// SolveLinear returns the minimum-norm least-squares solution of a·x = b.
func SolveLinear(a mat.Matrix, b []float64) ([]float64, error) {
	pinv, err := PseudoInverse(a)
	if err != nil {
		return nil, err
	}
	return MulVec(pinv, b), nil
}

// MulVec returns m·x as a slice.
func MulVec(m mat.Matrix, x []float64) []float64 {
	r, _ := m.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(m, mat.NewVecDense(len(x), x))
	return out.RawVector().Data
}

// QuadForm returns xᵀ·m·x.
func QuadForm(m mat.Matrix, x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return mat.Inner(v, m, v)
}

// maxEigen returns the largest eigenvalue of a symmetric matrix, falling back
// to the Frobenius norm when the decomposition fails.
func maxEigen(q mat.Symmetric) float64 {
	var es mat.EigenSym
	if es.Factorize(q, false) {
		top := 0.0
		for _, v := range es.Values(nil) {
			top = math.Max(top, v)
		}
		return top
	}
	return mat.Norm(q, 2)
}

const eps = 2.220446049250313e-16

// ProjectCappedSimplex returns the Euclidean projection of w onto
// {x : Σx = 1, 0 ≤ x ≤ limit}.
func ProjectCappedSimplex(w []float64, limit float64) ([]float64, error) {
	n := len(w)
	ones := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range ones {
		ones[i] = 1
		upper[i] = limit
	}
	cons := &Constraints{
		Aeq:   mat.NewDense(1, n, ones),
		Beq:   []float64{1},
		Lower: lower,
		Upper: upper,
	}
	proj, err := newProjector(cons, n)
	if err != nil {
		return nil, err
	}
	x := append([]float64(nil), w...)
	if err := proj.project(x); err != nil {
		return nil, err
	}
	return x, nil
}
