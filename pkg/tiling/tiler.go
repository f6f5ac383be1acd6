// Package tiling splits a grid into a near-square arrangement of disjoint
// tiles and stitches tiles back together.
package tiling

import (
	"fmt"
	"math"

	"pcadenoise/internal/models"
)

// Layout returns the number of tile rows and columns used for count tiles
// over a width x height grid. Among all r in [1,count] with c = ceil(count/r)
// it picks the smallest r*c, then the most square cells.
func Layout(width, height, count int) (rows, cols int, err error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: grid dimensions %dx%d", models.ErrInvalidParameter, width, height)
	}
	if count < 1 {
		return 0, 0, fmt.Errorf("%w: tile count %d", models.ErrInvalidParameter, count)
	}

	bestCells := math.MaxInt
	bestSkew := math.Inf(1)
	for r := 1; r <= count; r++ {
		c := (count + r - 1) / r
		cells := r * c
		cellW := float64(width) / float64(c)
		cellH := float64(height) / float64(r)
		skew := math.Abs(math.Log(cellW / cellH))
		if cells < bestCells || (cells == bestCells && skew < bestSkew) {
			bestCells, bestSkew = cells, skew
			rows, cols = r, c
		}
	}
	return rows, cols, nil
}

// bounds splits [0,length) into n spans at rounded fractional positions
func bounds(length, n int) []int {
	b := make([]int, n+1)
	for i := 0; i <= n; i++ {
		b[i] = int(math.Round(float64(i) * float64(length) / float64(n)))
	}
	b[n] = length
	return b
}

// Partition splits grid into disjoint tiles that cover it exactly, in
// row-major order. Spans of zero extent, which only occur when more tiles
// are requested than there are rows or columns, yield no tile.
func Partition(grid *models.PixelGrid, count int) ([]*models.Tile, error) {
	rows, cols, err := Layout(grid.Width, grid.Height, count)
	if err != nil {
		return nil, err
	}

	xb := bounds(grid.Width, cols)
	yb := bounds(grid.Height, rows)

	tiles := make([]*models.Tile, 0, rows*cols)
	for j := 0; j < rows; j++ {
		h := yb[j+1] - yb[j]
		if h <= 0 {
			continue
		}
		for i := 0; i < cols; i++ {
			w := xb[i+1] - xb[i]
			if w <= 0 {
				continue
			}
			sub, err := grid.SubGrid(xb[i], yb[j], w, h)
			if err != nil {
				return nil, err
			}
			tiles = append(tiles, &models.Tile{PixelGrid: sub, PosX: xb[i], PosY: yb[j]})
		}
	}
	return tiles, nil
}

// Stitch copies every tile into a new width x height grid at its offset.
// The tiles must cover the grid exactly once.
func Stitch(tiles []*models.Tile, width, height int) (*models.PixelGrid, error) {
	grid, err := models.NewPixelGrid(width, height)
	if err != nil {
		return nil, err
	}
	hits := make([]uint8, width*height)
	for i, t := range tiles {
		if err := grid.Paste(t.PixelGrid, t.PosX, t.PosY); err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
		for y := t.PosY; y < t.PosY+t.Height; y++ {
			for x := t.PosX; x < t.PosX+t.Width; x++ {
				if hits[y*width+x] > 0 {
					return nil, fmt.Errorf("%w: tile %d overlaps another tile at (%d,%d)", models.ErrInvalidParameter, i, x, y)
				}
				hits[y*width+x] = 1
			}
		}
	}
	for i, h := range hits {
		if h == 0 {
			return nil, fmt.Errorf("%w: pixel (%d,%d) is not covered by any tile", models.ErrInvalidParameter, i%width, i/width)
		}
	}
	return grid, nil
}
