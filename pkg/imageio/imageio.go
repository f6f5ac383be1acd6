// Package imageio converts between image files and grayscale grids.
//
// PNG, JPEG and GIF are decoded through the standard library, TIFF and BMP
// through golang.org/x/image. Color inputs are reduced to a single channel
// either by Rec. 601 luma or by CIE L* lightness.
package imageio

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"pcadenoise/internal/models"
)

// Grayscale selects how color pixels are reduced to one sample
type Grayscale int

const (
	// Luma uses the Rec. 601 weights of image/color.GrayModel
	Luma Grayscale = iota

	// Lightness uses the CIE L* channel, scaled to [0,255]
	Lightness
)

// ParseGrayscale maps "luma" or "lightness" to a Grayscale mode
func ParseGrayscale(name string) (Grayscale, error) {
	switch strings.ToLower(name) {
	case "", "luma":
		return Luma, nil
	case "lightness", "lab":
		return Lightness, nil
	}
	return 0, fmt.Errorf("%w: grayscale mode %q", models.ErrInvalidParameter, name)
}

// Load decodes the image file at path into a grid
func Load(path string, mode Grayscale) (*models.PixelGrid, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	grid, _, err := Decode(bufio.NewReader(file), mode)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return grid, nil
}

// Decode reads any registered image format and returns the grid and the
// format name
func Decode(r io.Reader, mode Grayscale) (*models.PixelGrid, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}
	grid, err := ToGrid(img, mode)
	if err != nil {
		return nil, "", err
	}
	return grid, format, nil
}

// DecodeLimited is Decode for untrusted input. It reads the image header
// first and rejects images of more than maxPixels samples before any pixel
// buffer is allocated. maxPixels <= 0 disables the check.
func DecodeLimited(r io.Reader, mode Grayscale, maxPixels int64) (*models.PixelGrid, string, error) {
	if maxPixels <= 0 {
		return Decode(r, mode)
	}

	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, "", err
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d image exceeds the limit of %d pixels",
			models.ErrInvalidParameter, cfg.Width, cfg.Height, maxPixels)
	}
	return Decode(io.MultiReader(&header, r), mode)
}

// ToGrid converts img to a grid
func ToGrid(img image.Image, mode Grayscale) (*models.PixelGrid, error) {
	bounds := img.Bounds()
	grid, err := models.NewPixelGrid(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < grid.Height; y++ {
			src := gray.Pix[y*gray.Stride : y*gray.Stride+grid.Width]
			copy(grid.Pix[y*grid.Width:(y+1)*grid.Width], src)
		}
		return grid, nil
	}

	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			grid.Pix[y*grid.Width+x] = toGray(c, mode)
		}
	}
	return grid, nil
}

// toGray reduces one color to a sample
func toGray(c color.Color, mode Grayscale) uint8 {
	if mode == Lightness {
		cf, ok := colorful.MakeColor(c)
		if !ok {
			// fully transparent
			return 0
		}
		l, _, _ := cf.Lab()
		return models.Clamp(l * 255)
	}
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// FromGrid converts a grid to an 8-bit grayscale image
func FromGrid(grid *models.PixelGrid) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, grid.Width, grid.Height))
	copy(img.Pix, grid.Pix)
	return img
}

// Save encodes grid into the file at path. The format follows the file
// extension: .png, .jpg/.jpeg, .tif/.tiff or .bmp.
func Save(path string, grid *models.PixelGrid) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := Encode(writer, grid, format); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return writer.Flush()
}

// FormatOf maps a file extension to an encoder name
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".tif", ".tiff":
		return "tiff", nil
	case ".bmp":
		return "bmp", nil
	}
	return "", fmt.Errorf("%w: unsupported output extension %q", models.ErrInvalidParameter, filepath.Ext(path))
}

// Encode writes grid in the named format
func Encode(w io.Writer, grid *models.PixelGrid, format string) error {
	img := FromGrid(grid)
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case "bmp":
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("%w: unsupported format %q", models.ErrInvalidParameter, format)
}
