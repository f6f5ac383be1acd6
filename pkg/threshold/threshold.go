// Package threshold implements coefficient shrinkage for PCA denoising:
// hard and soft operators, the VisuShrink and BayesShrink threshold
// estimators, eigenvalue-adaptive scaling and a robust noise estimate.
package threshold

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"pcadenoise/internal/models"
)

// BayesEpsilon floors the estimated signal variance in BayesShrink
const BayesEpsilon = 1e-10

// DefaultNoiseFraction is the share of lowest-energy components used to
// estimate the noise level
const DefaultNoiseFraction = 0.25

// Kind selects the shrinkage operator
type Kind int

const (
	Hard Kind = iota
	Soft
)

// Shrink selects the threshold estimator
type Shrink int

const (
	Visu Shrink = iota
	Bayes
)

// Scope selects whether one threshold serves all components or each
// component gets a threshold scaled by its eigenvalue
type Scope int

const (
	Global Scope = iota
	Adaptive
)

// ParseKind maps "hard" or "soft" to a Kind
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hard":
		return Hard, nil
	case "soft":
		return Soft, nil
	}
	return 0, fmt.Errorf("%w: threshold kind %q", models.ErrUnsupportedPolicy, name)
}

// ParseShrink maps "visu" or "bayes" to a Shrink
func ParseShrink(name string) (Shrink, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "visu", "visushrink":
		return Visu, nil
	case "bayes", "bayesshrink":
		return Bayes, nil
	}
	return 0, fmt.Errorf("%w: shrink kind %q", models.ErrUnsupportedPolicy, name)
}

func (k Kind) String() string {
	switch k {
	case Hard:
		return "hard"
	case Soft:
		return "soft"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (s Shrink) String() string {
	switch s {
	case Visu:
		return "visu"
	case Bayes:
		return "bayes"
	}
	return fmt.Sprintf("Shrink(%d)", int(s))
}

func (s Scope) String() string {
	switch s {
	case Global:
		return "global"
	case Adaptive:
		return "adaptive"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// Apply shrinks x with threshold lambda
func (k Kind) Apply(lambda, x float64) float64 {
	if k == Soft {
		return SoftThreshold(lambda, x)
	}
	return HardThreshold(lambda, x)
}

// HardThreshold keeps x when |x| > lambda and zeroes it otherwise
func HardThreshold(lambda, x float64) float64 {
	if math.Abs(x) > lambda {
		return x
	}
	return 0
}

// SoftThreshold moves x towards zero by lambda, stopping at zero
func SoftThreshold(lambda, x float64) float64 {
	m := math.Abs(x) - lambda
	if m <= 0 {
		return 0
	}
	return math.Copysign(m, x)
}

// VisuShrink is the universal threshold sigma*sqrt(2 ln n) for n coefficients
func VisuShrink(sigma float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	return sigma * math.Sqrt(2*math.Log(float64(n)))
}

// BayesShrink returns sigma^2 / sqrt(max(coefVariance - sigma^2, eps)).
// When the coefficient variance does not exceed the noise variance the
// threshold becomes very large and the component is suppressed.
func BayesShrink(sigma, coefVariance float64) float64 {
	signal := coefVariance - sigma*sigma
	if signal < BayesEpsilon {
		signal = BayesEpsilon
	}
	return sigma * sigma / math.Sqrt(signal)
}

// AdaptiveComponent scales base by sqrt(eigenvalue/maxEigenvalue)
func AdaptiveComponent(base, eigenvalue, maxEigenvalue float64) float64 {
	if maxEigenvalue <= 0 {
		return base
	}
	if eigenvalue < 0 {
		eigenvalue = 0
	}
	return base * math.Sqrt(eigenvalue/maxEigenvalue)
}

// EstimateNoiseSigma returns the standard deviation of the coefficients in
// the highest-index fraction of rows of alpha. With eigenpairs in
// descending order these are the lowest-energy components.
func EstimateNoiseSigma(alpha mat.Matrix, fraction float64) (float64, error) {
	dim, m := alpha.Dims()
	if dim == 0 || m == 0 {
		return 0, fmt.Errorf("%w: coefficient matrix is %dx%d", models.ErrInvalidMatrixShape, dim, m)
	}
	if fraction <= 0 || fraction > 1 || math.IsNaN(fraction) {
		return 0, fmt.Errorf("%w: noise fraction %g outside (0,1]", models.ErrInvalidParameter, fraction)
	}

	rows := int(math.Ceil(fraction * float64(dim)))
	if rows < 1 {
		rows = 1
	}
	values := make([]float64, 0, rows*m)
	for i := dim - rows; i < dim; i++ {
		for j := 0; j < m; j++ {
			values = append(values, alpha.At(i, j))
		}
	}
	if len(values) < 2 {
		return math.Abs(values[0]), nil
	}
	return stat.StdDev(values, nil), nil
}

// Policy combines an operator, an estimator and a scope
type Policy struct {
	Kind   Kind
	Shrink Shrink
	Scope  Scope
}

// ParsePolicy builds a policy from textual kind and shrink names
func ParsePolicy(kind, shrink string, scope Scope) (Policy, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Policy{}, err
	}
	s, err := ParseShrink(shrink)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Kind: k, Shrink: s, Scope: scope}, nil
}

func (p Policy) String() string {
	return fmt.Sprintf("%s/%s/%s", p.Kind, p.Shrink, p.Scope)
}

// validate rejects values outside the declared enums
func (p Policy) validate() error {
	if p.Kind != Hard && p.Kind != Soft {
		return fmt.Errorf("%w: threshold kind %v", models.ErrUnsupportedPolicy, p.Kind)
	}
	if p.Shrink != Visu && p.Shrink != Bayes {
		return fmt.Errorf("%w: shrink kind %v", models.ErrUnsupportedPolicy, p.Shrink)
	}
	if p.Scope != Global && p.Scope != Adaptive {
		return fmt.Errorf("%w: scope %v", models.ErrUnsupportedPolicy, p.Scope)
	}
	return nil
}

// Base returns the threshold of the policy's estimator before any
// per-component scaling. BayesShrink uses the mean coefficient energy as
// the coefficient variance.
func (p Policy) Base(alpha mat.Matrix, sigma float64) (float64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	dim, m := alpha.Dims()
	if dim == 0 || m == 0 {
		return 0, fmt.Errorf("%w: coefficient matrix is %dx%d", models.ErrInvalidMatrixShape, dim, m)
	}

	n := dim * m
	switch p.Shrink {
	case Visu:
		return VisuShrink(sigma, n), nil
	default:
		norm := mat.Norm(alpha, 2)
		return BayesShrink(sigma, norm*norm/float64(n)), nil
	}
}

// Thresholds returns one threshold per component (row of alpha)
func (p Policy) Thresholds(alpha mat.Matrix, eigenvalues []float64, sigma float64) ([]float64, error) {
	dim, _ := alpha.Dims()
	if len(eigenvalues) != dim {
		return nil, fmt.Errorf("%w: %d eigenvalues for %d components", models.ErrInvalidMatrixShape, len(eigenvalues), dim)
	}
	base, err := p.Base(alpha, sigma)
	if err != nil {
		return nil, err
	}

	lambdas := make([]float64, dim)
	if p.Scope == Global {
		for i := range lambdas {
			lambdas[i] = base
		}
		return lambdas, nil
	}

	maxEv := math.Inf(-1)
	for _, ev := range eigenvalues {
		maxEv = math.Max(maxEv, ev)
	}
	for i, ev := range eigenvalues {
		lambdas[i] = AdaptiveComponent(base, ev, maxEv)
	}
	return lambdas, nil
}

// Apply shrinks alpha in place and returns the thresholds used
func (p Policy) Apply(alpha *mat.Dense, eigenvalues []float64, sigma float64) ([]float64, error) {
	lambdas, err := p.Thresholds(alpha, eigenvalues, sigma)
	if err != nil {
		return nil, err
	}
	for i, lambda := range lambdas {
		row := alpha.RawRowView(i)
		for j, x := range row {
			row[j] = p.Kind.Apply(lambda, x)
		}
	}
	return lambdas, nil
}
