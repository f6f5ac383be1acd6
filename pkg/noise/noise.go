// Package noise adds synthetic additive Gaussian noise to grids.
package noise

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"pcadenoise/internal/models"
)

// AddGaussian returns a copy of grid with zero-mean Gaussian noise of the
// given standard deviation added to every sample. The same seed always
// produces the same noise.
func AddGaussian(grid *models.PixelGrid, sigma float64, seed uint64) (*models.PixelGrid, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("%w: noise sigma %g", models.ErrInvalidParameter, sigma)
	}
	out := grid.Clone()
	if sigma == 0 {
		return out, nil
	}

	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewSource(seed)}
	for i, v := range out.Pix {
		out.Pix[i] = models.Clamp(float64(v) + normal.Rand())
	}
	return out, nil
}

// Constant returns a width x height grid filled with value
func Constant(width, height int, value uint8) (*models.PixelGrid, error) {
	g, err := models.NewPixelGrid(width, height)
	if err != nil {
		return nil, err
	}
	for i := range g.Pix {
		g.Pix[i] = value
	}
	return g, nil
}
