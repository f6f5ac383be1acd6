// Package metrics compares a denoised grid with a reference grid.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"pcadenoise/internal/models"
)

// Peak is the largest representable sample value
const Peak = 255.0

// ValidationMetrics holds the quality metrics of a denoised image against a
// reference.
type ValidationMetrics struct {
	// MSE is the mean squared sample difference
	MSE float64

	// RMSE is the square root of MSE
	RMSE float64

	// PSNR is the peak signal-to-noise ratio in dB. Identical images give +Inf.
	PSNR float64

	// SSIM is the structural similarity computed over the whole image,
	// in [-1, 1] with 1 meaning identical structure.
	SSIM float64
}

// Compare computes all metrics of candidate against reference
func Compare(reference, candidate *models.PixelGrid) (ValidationMetrics, error) {
	if reference.Width != candidate.Width || reference.Height != candidate.Height {
		return ValidationMetrics{}, fmt.Errorf("%w: cannot compare %dx%d with %dx%d", models.ErrInvalidParameter,
			reference.Width, reference.Height, candidate.Width, candidate.Height)
	}

	original := reference.Floats()
	reconstructed := candidate.Floats()

	mse := MSE(original, reconstructed)
	return ValidationMetrics{
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		PSNR: PSNR(mse),
		SSIM: SSIM(original, reconstructed),
	}, nil
}

// MSE computes the mean squared error of two equally long sample slices
func MSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}
	// distance in the L2 norm, squared
	d := floats.Distance(original, reconstructed, 2)
	return d * d / float64(n)
}

// PSNR converts a mean squared error into decibels relative to Peak
func PSNR(mse float64) float64 {
	if mse <= 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(Peak*Peak/mse)
}

// SSIM computes the structural similarity index over the whole image
func SSIM(original, reconstructed []float64) float64 {
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * Peak) * (k1 * Peak)
	c2 := (k2 * Peak) * (k2 * Peak)

	n := len(original)
	if n != len(reconstructed) || n < 2 {
		return 0
	}

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)

	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)

	if den > 0 {
		return num / den
	}
	return 0
}

// Improvement returns the relative MSE reduction of denoised over noisy,
// both measured against reference. 0.3 means a 30% lower error.
func Improvement(reference, noisy, denoised *models.PixelGrid) (float64, error) {
	before, err := Compare(reference, noisy)
	if err != nil {
		return 0, err
	}
	after, err := Compare(reference, denoised)
	if err != nil {
		return 0, err
	}
	if before.MSE == 0 {
		return 0, nil
	}
	return 1 - after.MSE/before.MSE, nil
}
