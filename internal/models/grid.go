package models

import (
	"fmt"
	"math"
)

// PixelGrid is a grayscale image with integer samples in [0,255].
// Samples are stored row-major: the sample at (x, y) lives at Pix[y*Width+x].
type PixelGrid struct {
	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int

	// Pix holds Width*Height samples
	Pix []uint8
}

// NewPixelGrid allocates a zero-filled grid of the given dimensions
func NewPixelGrid(width, height int) (*PixelGrid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: grid dimensions must be positive, got %dx%d", ErrInvalidParameter, width, height)
	}
	return &PixelGrid{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}, nil
}

// NewPixelGridFrom wraps existing samples. The slice is not copied.
func NewPixelGridFrom(width, height int, pix []uint8) (*PixelGrid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: grid dimensions must be positive, got %dx%d", ErrInvalidParameter, width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("%w: %dx%d grid needs %d samples, got %d", ErrInvalidParameter, width, height, width*height, len(pix))
	}
	return &PixelGrid{Width: width, Height: height, Pix: pix}, nil
}

// InBounds reports whether (x, y) addresses a sample of the grid
func (g *PixelGrid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// At returns the sample at (x, y)
func (g *PixelGrid) At(x, y int) (int, error) {
	if !g.InBounds(x, y) {
		return 0, fmt.Errorf("%w: (%d,%d) outside %dx%d grid", ErrInvalidParameter, x, y, g.Width, g.Height)
	}
	return int(g.Pix[y*g.Width+x]), nil
}

// Set stores v at (x, y), rounded and clamped to [0,255]
func (g *PixelGrid) Set(x, y int, v float64) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d grid", ErrInvalidParameter, x, y, g.Width, g.Height)
	}
	g.Pix[y*g.Width+x] = Clamp(v)
	return nil
}

// Clone returns a deep copy of the grid
func (g *PixelGrid) Clone() *PixelGrid {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return &PixelGrid{Width: g.Width, Height: g.Height, Pix: pix}
}

// SubGrid copies the w x h region with top-left corner (x, y) into a new grid
func (g *PixelGrid) SubGrid(x, y, w, h int) (*PixelGrid, error) {
	if w <= 0 || h <= 0 || x < 0 || y < 0 || x+w > g.Width || y+h > g.Height {
		return nil, fmt.Errorf("%w: region %dx%d at (%d,%d) outside %dx%d grid", ErrInvalidParameter, w, h, x, y, g.Width, g.Height)
	}
	sub := &PixelGrid{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for row := 0; row < h; row++ {
		src := (y+row)*g.Width + x
		copy(sub.Pix[row*w:(row+1)*w], g.Pix[src:src+w])
	}
	return sub, nil
}

// Paste copies src into the grid with its top-left corner at (x, y)
func (g *PixelGrid) Paste(src *PixelGrid, x, y int) error {
	if x < 0 || y < 0 || x+src.Width > g.Width || y+src.Height > g.Height {
		return fmt.Errorf("%w: %dx%d region at (%d,%d) outside %dx%d grid", ErrInvalidParameter, src.Width, src.Height, x, y, g.Width, g.Height)
	}
	for row := 0; row < src.Height; row++ {
		dst := (y+row)*g.Width + x
		copy(g.Pix[dst:dst+src.Width], src.Pix[row*src.Width:(row+1)*src.Width])
	}
	return nil
}

// Floats returns the samples as float64 values in row-major order
func (g *PixelGrid) Floats() []float64 {
	out := make([]float64, len(g.Pix))
	for i, v := range g.Pix {
		out[i] = float64(v)
	}
	return out
}

// Clamp rounds v to the nearest integer and clamps it to [0,255].
// NaN maps to 0.
func Clamp(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// Tile is a sub-region of a parent grid together with its offset
type Tile struct {
	*PixelGrid

	// PosX and PosY locate the tile's top-left sample in the parent grid
	PosX int
	PosY int
}

// Bounds returns the tile footprint in parent coordinates as x0, y0, x1, y1
// with exclusive upper bounds
func (t *Tile) Bounds() (x0, y0, x1, y1 int) {
	return t.PosX, t.PosY, t.PosX + t.Width, t.PosY + t.Height
}
