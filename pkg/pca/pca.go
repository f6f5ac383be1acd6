// Package pca computes the empirical eigenbasis of a set of vectorized
// samples and projects samples onto it and back.
//
// Samples are the columns of a dim x M matrix. The eigenbasis is obtained
// from the symmetric covariance matrix with gonum's EigenSym.
package pca

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"pcadenoise/internal/models"
)

// Basis is the result of decomposing a sample matrix
type Basis struct {
	// Mean is the per-row average of the samples (length dim)
	Mean *mat.VecDense

	// Vectors holds the orthonormal eigenvectors as columns (dim x dim).
	// Column i pairs with Values[i].
	Vectors *mat.Dense

	// Values holds the eigenvalues in descending order
	Values []float64

	// Coefficients are the centered samples projected on Vectors (dim x M)
	Coefficients *mat.Dense
}

// MeanAndCovariance returns the row means of v, the centered samples and
// the covariance (1/M) * centered * centered^T.
//
// M >= dim is required; with fewer samples the covariance is rank-deficient.
func MeanAndCovariance(v mat.Matrix) (*mat.VecDense, *mat.SymDense, *mat.Dense, error) {
	dim, m := v.Dims()
	if dim == 0 || m == 0 {
		return nil, nil, nil, fmt.Errorf("%w: sample matrix is %dx%d", models.ErrInvalidMatrixShape, dim, m)
	}
	if m < dim {
		return nil, nil, nil, fmt.Errorf("%w: %d samples for dimension %d", models.ErrInsufficientSamples, m, dim)
	}

	mean := mat.NewVecDense(dim, nil)
	centered := mat.DenseCopyOf(v)
	for i := 0; i < dim; i++ {
		row := centered.RawRowView(i)
		sum := 0.0
		for _, x := range row {
			sum += x
		}
		mu := sum / float64(m)
		mean.SetVec(i, mu)
		for j := range row {
			row[j] -= mu
		}
	}

	cov := mat.NewSymDense(dim, nil)
	cov.SymOuterK(1/float64(m), centered)

	return mean, cov, centered, nil
}

// Decompose centers v, diagonalizes its covariance and projects the centered
// samples on the eigenvectors
func Decompose(v mat.Matrix) (*Basis, error) {
	mean, cov, centered, err := MeanAndCovariance(v)
	if err != nil {
		return nil, err
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		dim, _ := cov.Dims()
		return nil, fmt.Errorf("eigendecomposition of %dx%d covariance did not converge", dim, dim)
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	values, sorted := sortDescending(values, &vectors)

	alpha, err := Project(sorted, centered)
	if err != nil {
		return nil, err
	}

	return &Basis{
		Mean:         mean,
		Vectors:      sorted,
		Values:       values,
		Coefficients: alpha,
	}, nil
}

// sortDescending reorders eigenpairs by decreasing eigenvalue.
// EigenSym returns them in ascending order.
func sortDescending(values []float64, vectors *mat.Dense) ([]float64, *mat.Dense) {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] > values[order[b]]
	})

	rows, _ := vectors.Dims()
	outValues := make([]float64, n)
	outVectors := mat.NewDense(rows, n, nil)
	col := make([]float64, rows)
	for dst, src := range order {
		outValues[dst] = values[src]
		mat.Col(col, src, vectors)
		outVectors.SetCol(dst, col)
	}
	return outValues, outVectors
}

// Project returns u^T * centered
func Project(u mat.Matrix, centered mat.Matrix) (*mat.Dense, error) {
	ur, uc := u.Dims()
	cr, cc := centered.Dims()
	if ur == 0 || uc == 0 || cr == 0 || cc == 0 || ur != cr {
		return nil, fmt.Errorf("%w: cannot project %dx%d samples on %dx%d basis", models.ErrInvalidMatrixShape, cr, cc, ur, uc)
	}

	alpha := mat.NewDense(uc, cc, nil)
	alpha.Mul(u.T(), centered)
	return alpha, nil
}

// Reconstruct returns mean + u * alpha, the inverse of Decompose when alpha
// is unchanged
func Reconstruct(u mat.Matrix, alpha mat.Matrix, mean mat.Vector) (*mat.Dense, error) {
	ur, uc := u.Dims()
	ar, ac := alpha.Dims()
	if ur == 0 || uc == 0 || ar == 0 || ac == 0 || uc != ar || mean.Len() != ur {
		return nil, fmt.Errorf("%w: basis %dx%d, coefficients %dx%d, mean %d", models.ErrInvalidMatrixShape, ur, uc, ar, ac, mean.Len())
	}

	out := mat.NewDense(ur, ac, nil)
	out.Mul(u, alpha)
	for i := 0; i < ur; i++ {
		mu := mean.AtVec(i)
		row := out.RawRowView(i)
		for j := range row {
			row[j] += mu
		}
	}
	return out, nil
}

// Reconstruct rebuilds the samples from the basis and the given coefficients
func (b *Basis) Reconstruct(alpha mat.Matrix) (*mat.Dense, error) {
	return Reconstruct(b.Vectors, alpha, b.Mean)
}
