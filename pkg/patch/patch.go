// Package patch cuts a grid into evenly spaced, overlapping square patches
// and writes patches back into a grid.
package patch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"pcadenoise/internal/models"
)

// Patch is a square window of a grid with its origin
type Patch struct {
	// Side is the patch edge length
	Side int

	// X and Y locate the top-left sample in the source grid
	X int
	Y int

	// Samples holds Side*Side values in row-major order
	Samples []float64
}

// Blend selects how overlapping patches are combined on reconstruction
type Blend int

const (
	// LastWriter lets later patches overwrite earlier ones
	LastWriter Blend = iota

	// Average takes the mean of all patches covering a pixel
	Average
)

// ParseBlend maps "last" or "average" to a Blend
func ParseBlend(name string) (Blend, error) {
	switch name {
	case "", "last", "last-writer":
		return LastWriter, nil
	case "average", "mean":
		return Average, nil
	}
	return 0, fmt.Errorf("%w: blend mode %q", models.ErrInvalidParameter, name)
}

func (b Blend) String() string {
	if b == Average {
		return "average"
	}
	return "last"
}

// Positions returns the patch origins along an axis of the given length.
// Consecutive patches overlap by at least minOverlap samples and the last
// patch ends at the axis boundary.
func Positions(length, side, minOverlap int) ([]int, error) {
	if side <= 0 || side > length {
		return nil, fmt.Errorf("%w: patch side %d for axis length %d", models.ErrInvalidParameter, side, length)
	}
	if minOverlap < 0 || minOverlap >= side {
		return nil, fmt.Errorf("%w: overlap %d must be in [0,%d)", models.ErrInvalidParameter, minOverlap, side)
	}
	span := length - side
	if span == 0 {
		return []int{0}, nil
	}
	step := side - minOverlap
	count := (span+step-1)/step + 1

	stride := float64(span) / float64(count-1)
	pos := make([]int, count)
	for i := 0; i < count-1; i++ {
		pos[i] = int(math.Round(float64(i) * stride))
	}
	pos[count-1] = span
	return pos, nil
}

// Extract returns the patches covering grid in row-major order
func Extract(grid *models.PixelGrid, side, minOverlap int) ([]*Patch, error) {
	if side <= 0 {
		return nil, fmt.Errorf("%w: patch side %d", models.ErrInvalidParameter, side)
	}
	if minOverlap < 0 || minOverlap >= side {
		return nil, fmt.Errorf("%w: overlap %d must be in [0,%d)", models.ErrInvalidParameter, minOverlap, side)
	}
	if side > grid.Width || side > grid.Height {
		return nil, fmt.Errorf("%w: side %d exceeds %dx%d grid", models.ErrPatchTooLarge, side, grid.Width, grid.Height)
	}

	xs, err := Positions(grid.Width, side, minOverlap)
	if err != nil {
		return nil, err
	}
	ys, err := Positions(grid.Height, side, minOverlap)
	if err != nil {
		return nil, err
	}

	patches := make([]*Patch, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			p := &Patch{Side: side, X: x, Y: y, Samples: make([]float64, side*side)}
			for row := 0; row < side; row++ {
				src := grid.Pix[(y+row)*grid.Width+x : (y+row)*grid.Width+x+side]
				dst := p.Samples[row*side : (row+1)*side]
				for i, v := range src {
					dst[i] = float64(v)
				}
			}
			patches = append(patches, p)
		}
	}
	return patches, nil
}

// Reconstruct writes the patches into a new width x height grid, later
// patches overwriting earlier ones where they overlap
func Reconstruct(patches []*Patch, width, height int) (*models.PixelGrid, error) {
	return ReconstructWith(patches, width, height, LastWriter)
}

// ReconstructTile is Reconstruct tagged with the tile's offset in its parent
func ReconstructTile(patches []*Patch, width, height, posX, posY int) (*models.Tile, error) {
	grid, err := Reconstruct(patches, width, height)
	if err != nil {
		return nil, err
	}
	return &models.Tile{PixelGrid: grid, PosX: posX, PosY: posY}, nil
}

// ReconstructWith writes the patches into a new grid using the given blend
func ReconstructWith(patches []*Patch, width, height int, blend Blend) (*models.PixelGrid, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("%w: nothing to reconstruct into %dx%d grid", models.ErrEmptyPatchList, width, height)
	}
	grid, err := models.NewPixelGrid(width, height)
	if err != nil {
		return nil, err
	}
	for i, p := range patches {
		if p.X < 0 || p.Y < 0 || p.X+p.Side > width || p.Y+p.Side > height || len(p.Samples) != p.Side*p.Side {
			return nil, fmt.Errorf("%w: patch %d (side %d at %d,%d) does not fit %dx%d grid", models.ErrInvalidParameter, i, p.Side, p.X, p.Y, width, height)
		}
	}

	if blend == LastWriter {
		for _, p := range patches {
			for row := 0; row < p.Side; row++ {
				dst := grid.Pix[(p.Y+row)*width+p.X : (p.Y+row)*width+p.X+p.Side]
				for i, v := range p.Samples[row*p.Side : (row+1)*p.Side] {
					dst[i] = models.Clamp(v)
				}
			}
		}
		return grid, nil
	}

	sums := make([]float64, width*height)
	counts := make([]int, width*height)
	for _, p := range patches {
		for row := 0; row < p.Side; row++ {
			base := (p.Y+row)*width + p.X
			for i, v := range p.Samples[row*p.Side : (row+1)*p.Side] {
				sums[base+i] += v
				counts[base+i]++
			}
		}
	}
	for i, n := range counts {
		if n > 0 {
			grid.Pix[i] = models.Clamp(sums[i] / float64(n))
		}
	}
	return grid, nil
}

// ToMatrix stacks the patch samples as columns of a side^2 x len(patches)
// matrix
func ToMatrix(patches []*Patch) (*mat.Dense, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("%w: no patches to vectorize", models.ErrEmptyPatchList)
	}
	dim := len(patches[0].Samples)
	if dim == 0 {
		return nil, fmt.Errorf("%w: patches have no samples", models.ErrInvalidMatrixShape)
	}
	m := mat.NewDense(dim, len(patches), nil)
	for j, p := range patches {
		if len(p.Samples) != dim {
			return nil, fmt.Errorf("%w: patch %d has %d samples, expected %d", models.ErrInvalidMatrixShape, j, len(p.Samples), dim)
		}
		m.SetCol(j, p.Samples)
	}
	return m, nil
}

// FromMatrix replaces each patch's samples with the matching column of m
func FromMatrix(m mat.Matrix, patches []*Patch) error {
	rows, cols := m.Dims()
	if cols != len(patches) {
		return fmt.Errorf("%w: %d columns for %d patches", models.ErrInvalidMatrixShape, cols, len(patches))
	}
	for j, p := range patches {
		if rows != p.Side*p.Side {
			return fmt.Errorf("%w: %d rows for patch side %d", models.ErrInvalidMatrixShape, rows, p.Side)
		}
		p.Samples = mat.Col(nil, j, m)
	}
	return nil
}
