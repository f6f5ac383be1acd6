// Package visualization renders the result of a denoising run as grayscale
// panels: the input, the output, their amplified difference, a side by side
// comparison and the eigenpatches of the PCA basis.
package visualization

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"pcadenoise/internal/models"
	"pcadenoise/pkg/imageio"
	"pcadenoise/pkg/pca"
)

// Panels lists the panel names understood by ExtractPanel
var Panels = []string{"input", "output", "difference", "comparison", "basis"}

// DefaultGain amplifies differences so that small corrections stay visible
const DefaultGain = 4.0

// Viewer holds the input and output of one denoising run
type Viewer struct {
	input  *models.PixelGrid
	output *models.PixelGrid

	// basis is optional; without it no basis panel is produced
	basis *pca.Basis
	side  int

	gain float64
	gap  int
}

// NewViewer creates a viewer for a denoising run. basis may be nil.
func NewViewer(input, output *models.PixelGrid, basis *pca.Basis, side int) *Viewer {
	return &Viewer{
		input:  input,
		output: output,
		basis:  basis,
		side:   side,
		gain:   DefaultGain,
		gap:    2,
	}
}

// SetGain changes the difference amplification
func (v *Viewer) SetGain(gain float64) {
	v.gain = gain
}

// ExtractPanel renders the named panel
func (v *Viewer) ExtractPanel(name string) (*models.PixelGrid, error) {
	switch name {
	case "input":
		return v.input.Clone(), nil
	case "output":
		return v.output.Clone(), nil
	case "difference":
		return Difference(v.input, v.output, v.gain)
	case "comparison":
		diff, err := Difference(v.input, v.output, v.gain)
		if err != nil {
			return nil, err
		}
		return Montage(v.gap, v.input, v.output, diff)
	case "basis":
		if v.basis == nil {
			return nil, fmt.Errorf("%w: no basis to render", models.ErrInvalidParameter)
		}
		return Eigenpatches(v.basis.Vectors, v.side, v.gap)
	}
	return nil, fmt.Errorf("%w: unknown panel %q", models.ErrInvalidParameter, name)
}

// Difference returns |a-b| scaled by gain
func Difference(a, b *models.PixelGrid, gain float64) (*models.PixelGrid, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("%w: cannot diff %dx%d with %dx%d", models.ErrInvalidParameter,
			a.Width, a.Height, b.Width, b.Height)
	}
	out, err := models.NewPixelGrid(a.Width, a.Height)
	if err != nil {
		return nil, err
	}
	for i := range a.Pix {
		out.Pix[i] = models.Clamp(gain * math.Abs(float64(a.Pix[i])-float64(b.Pix[i])))
	}
	return out, nil
}

// Montage places grids left to right, top aligned, separated by gap black
// columns
func Montage(gap int, grids ...*models.PixelGrid) (*models.PixelGrid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("%w: nothing to lay out", models.ErrInvalidParameter)
	}
	width, height := gap*(len(grids)-1), 0
	for _, g := range grids {
		width += g.Width
		height = max(height, g.Height)
	}
	out, err := models.NewPixelGrid(width, height)
	if err != nil {
		return nil, err
	}
	x := 0
	for _, g := range grids {
		if err := out.Paste(g, x, 0); err != nil {
			return nil, err
		}
		x += g.Width + gap
	}
	return out, nil
}

// Eigenpatches renders each column of vectors as a side x side tile, mid
// gray for zero. Tiles are laid out in reading order on a square grid.
func Eigenpatches(vectors mat.Matrix, side, gap int) (*models.PixelGrid, error) {
	dim, count := vectors.Dims()
	if side <= 0 || dim != side*side || count == 0 {
		return nil, fmt.Errorf("%w: %dx%d vectors for patch side %d", models.ErrInvalidMatrixShape, dim, count, side)
	}
	perRow := int(math.Ceil(math.Sqrt(float64(count))))
	rows := (count + perRow - 1) / perRow
	out, err := models.NewPixelGrid(perRow*(side+gap)-gap, rows*(side+gap)-gap)
	if err != nil {
		return nil, err
	}

	col := make([]float64, dim)
	for j := 0; j < count; j++ {
		mat.Col(col, j, vectors)
		peak := 0.0
		for _, c := range col {
			peak = max(peak, math.Abs(c))
		}
		if peak == 0 {
			peak = 1
		}

		x0 := (j % perRow) * (side + gap)
		y0 := (j / perRow) * (side + gap)
		for i, c := range col {
			out.Pix[(y0+i/side)*out.Width+x0+i%side] = models.Clamp(128 + 127*c/peak)
		}
	}
	return out, nil
}

// SavePanel writes a panel, choosing the format by file extension
func (v *Viewer) SavePanel(panel *models.PixelGrid, filename string) error {
	return imageio.Save(filename, panel)
}

// SavePanels renders every available panel into outputDir as PNG
func (v *Viewer) SavePanels(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for _, name := range Panels {
		if name == "basis" && v.basis == nil {
			continue
		}
		panel, err := v.ExtractPanel(name)
		if err != nil {
			return err
		}
		if err := v.SavePanel(panel, filepath.Join(outputDir, name+".png")); err != nil {
			return err
		}
	}

	return nil
}
