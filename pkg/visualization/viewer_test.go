package visualization

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"pcadenoise/internal/models"
	"pcadenoise/pkg/imageio"
	"pcadenoise/pkg/patch"
	"pcadenoise/pkg/pca"
)

// createTestGrid fills a grid with a diagonal ramp plus offset
func createTestGrid(t *testing.T, width, height, offset int) *models.PixelGrid {
	t.Helper()
	g, err := models.NewPixelGrid(width, height)
	if err != nil {
		t.Fatalf("NewPixelGrid failed: %v", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g.Pix[y*width+x] = models.Clamp(float64(4*(x+y) + offset))
		}
	}
	return g
}

// createTestBasis decomposes the 4x4 patches of grid
func createTestBasis(t *testing.T, grid *models.PixelGrid) *pca.Basis {
	t.Helper()
	patches, err := patch.Extract(grid, 4, 2)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	samples, err := patch.ToMatrix(patches)
	if err != nil {
		t.Fatalf("ToMatrix failed: %v", err)
	}
	basis, err := pca.Decompose(samples)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	return basis
}

func TestDifference(t *testing.T) {
	a := createTestGrid(t, 8, 6, 0)
	b := createTestGrid(t, 8, 6, 5)

	diff, err := Difference(a, b, 3)
	if err != nil {
		t.Fatalf("Difference failed: %v", err)
	}
	// the ramp saturates at 255 in the bottom right, compare away from it
	if v, _ := diff.At(0, 0); v != 15 {
		t.Errorf("Expected 15 at (0,0), got %d", v)
	}

	if _, err := Difference(a, createTestGrid(t, 6, 8, 0), 1); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for mismatched sizes, got %v", err)
	}
}

func TestMontage(t *testing.T) {
	a := createTestGrid(t, 5, 4, 0)
	b := createTestGrid(t, 3, 7, 100)

	m, err := Montage(2, a, b)
	if err != nil {
		t.Fatalf("Montage failed: %v", err)
	}
	if m.Width != 10 || m.Height != 7 {
		t.Fatalf("Expected 10x7 montage, got %dx%d", m.Width, m.Height)
	}
	if v, _ := m.At(7, 0); v != 100 {
		t.Errorf("Second panel should start at x=7, got %d", v)
	}
	if v, _ := m.At(5, 0); v != 0 {
		t.Errorf("Gap should be black, got %d", v)
	}

	if _, err := Montage(2); err == nil {
		t.Error("Expected an error for an empty montage")
	}
}

func TestEigenpatches(t *testing.T) {
	basis := createTestBasis(t, createTestGrid(t, 16, 16, 0))

	panel, err := Eigenpatches(basis.Vectors, 4, 1)
	if err != nil {
		t.Fatalf("Eigenpatches failed: %v", err)
	}
	// 16 vectors in a 4x4 layout of 4x4 tiles with 1 pixel gaps
	if panel.Width != 19 || panel.Height != 19 {
		t.Errorf("Expected 19x19 panel, got %dx%d", panel.Width, panel.Height)
	}

	if _, err := Eigenpatches(mat.NewDense(9, 9, nil), 4, 1); !errors.Is(err, models.ErrInvalidMatrixShape) {
		t.Errorf("Expected ErrInvalidMatrixShape, got %v", err)
	}
}

func TestExtractPanel(t *testing.T) {
	input := createTestGrid(t, 16, 16, 0)
	output := createTestGrid(t, 16, 16, 2)
	viewer := NewViewer(input, output, nil, 4)

	comparison, err := viewer.ExtractPanel("comparison")
	if err != nil {
		t.Fatalf("ExtractPanel failed: %v", err)
	}
	if comparison.Width != 3*16+2*2 || comparison.Height != 16 {
		t.Errorf("Unexpected comparison size %dx%d", comparison.Width, comparison.Height)
	}

	if _, err := viewer.ExtractPanel("basis"); err == nil {
		t.Error("Expected an error for the basis panel without a basis")
	}
	if _, err := viewer.ExtractPanel("histogram"); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for an unknown panel, got %v", err)
	}
}

func TestSavePanels(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "panels")

	input := createTestGrid(t, 16, 16, 0)
	viewer := NewViewer(input, createTestGrid(t, 16, 16, 3), createTestBasis(t, input), 4)
	if err := viewer.SavePanels(outDir); err != nil {
		t.Fatalf("SavePanels failed: %v", err)
	}

	for _, name := range Panels {
		path := filepath.Join(outDir, name+".png")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Missing panel %s: %v", name, err)
			continue
		}
		if _, err := imageio.Load(path, imageio.Luma); err != nil {
			t.Errorf("Panel %s does not decode: %v", name, err)
		}
	}
}
