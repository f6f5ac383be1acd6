package pca

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"pcadenoise/internal/models"
)

// randomSamples builds a dim x m matrix with correlated rows
func randomSamples(dim, m int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	v := mat.NewDense(dim, m, nil)
	for j := 0; j < m; j++ {
		base := rng.NormFloat64() * 10
		for i := 0; i < dim; i++ {
			v.Set(i, j, 50+base*float64(i+1)+rng.NormFloat64())
		}
	}
	return v
}

func TestMeanAndCovariance(t *testing.T) {
	v := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		2, 4, 6, 8,
	})

	mean, cov, centered, err := MeanAndCovariance(v)
	if err != nil {
		t.Fatalf("MeanAndCovariance failed: %v", err)
	}

	if !floats.EqualApprox(mean.RawVector().Data, []float64{2.5, 5}, 1e-12) {
		t.Errorf("Unexpected mean %v", mean.RawVector().Data)
	}
	if got := centered.At(0, 0); math.Abs(got+1.5) > 1e-12 {
		t.Errorf("Expected centered(0,0)=-1.5, got %f", got)
	}

	// population variance of {1,2,3,4} is 1.25
	want := mat.NewSymDense(2, []float64{1.25, 2.5, 2.5, 5})
	if !mat.EqualApprox(cov, want, 1e-12) {
		t.Errorf("Unexpected covariance %v", mat.Formatted(cov))
	}
}

func TestDecomposeRoundTrip(t *testing.T) {
	for _, shape := range [][2]int{{4, 20}, {9, 9}, {16, 100}} {
		v := randomSamples(shape[0], shape[1], int64(shape[0]*shape[1]))

		basis, err := Decompose(v)
		if err != nil {
			t.Fatalf("Decompose(%dx%d) failed: %v", shape[0], shape[1], err)
		}

		back, err := basis.Reconstruct(basis.Coefficients)
		if err != nil {
			t.Fatalf("Reconstruct failed: %v", err)
		}
		if !mat.EqualApprox(back, v, 1e-8) {
			t.Errorf("Round trip of %dx%d samples is not lossless", shape[0], shape[1])
		}
	}
}

func TestDecomposeBasisProperties(t *testing.T) {
	v := randomSamples(6, 50, 7)
	basis, err := Decompose(v)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	for i := 1; i < len(basis.Values); i++ {
		if basis.Values[i] > basis.Values[i-1] {
			t.Errorf("Eigenvalues not descending at %d: %v", i, basis.Values)
		}
	}
	for i, ev := range basis.Values {
		if ev < -1e-9 {
			t.Errorf("Negative eigenvalue %d: %g", i, ev)
		}
	}

	var gram mat.Dense
	gram.Mul(basis.Vectors.T(), basis.Vectors)
	identity := mat.NewDiagDense(6, []float64{1, 1, 1, 1, 1, 1})
	if !mat.EqualApprox(&gram, identity, 1e-9) {
		t.Errorf("Eigenvectors are not orthonormal")
	}

	// the coefficient variance of component i equals eigenvalue i
	_, m := v.Dims()
	for i, ev := range basis.Values {
		row := basis.Coefficients.RawRowView(i)
		got := floats.Dot(row, row) / float64(m)
		if math.Abs(got-ev) > 1e-6*math.Max(1, ev) {
			t.Errorf("Component %d: coefficient energy %g, eigenvalue %g", i, got, ev)
		}
	}
}

func TestDecomposeInsufficientSamples(t *testing.T) {
	// a 16x16 patch has dimension 256
	v := randomSamples(256, 200, 3)
	_, err := Decompose(v)
	if !errors.Is(err, models.ErrInsufficientSamples) {
		t.Fatalf("Expected ErrInsufficientSamples, got %v", err)
	}
}

func TestShapeErrors(t *testing.T) {
	if _, _, _, err := MeanAndCovariance(&mat.Dense{}); !errors.Is(err, models.ErrInvalidMatrixShape) {
		t.Errorf("Expected ErrInvalidMatrixShape for empty matrix, got %v", err)
	}

	u := mat.NewDense(3, 3, nil)
	centered := mat.NewDense(4, 10, nil)
	if _, err := Project(u, centered); !errors.Is(err, models.ErrInvalidMatrixShape) {
		t.Errorf("Expected ErrInvalidMatrixShape from Project, got %v", err)
	}

	alpha := mat.NewDense(3, 5, nil)
	mean := mat.NewVecDense(4, nil)
	if _, err := Reconstruct(u, alpha, mean); !errors.Is(err, models.ErrInvalidMatrixShape) {
		t.Errorf("Expected ErrInvalidMatrixShape from Reconstruct, got %v", err)
	}
}
