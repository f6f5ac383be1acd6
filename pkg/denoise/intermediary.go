package denoise

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"pcadenoise/internal/models"
	"pcadenoise/pkg/imageio"
)

// saveIntermediaryResult writes the data of a pipeline stage below
// IntermediaryDir/stage. Grids become PNG images, eigenvalue spectra and
// matrices become zstd matrix dumps.
func (d *Denoiser) saveIntermediaryResult(stage string, data interface{}, index int) error {
	if !d.params.SaveIntermediaryResults {
		return nil
	}

	stageDir := filepath.Join(d.params.IntermediaryDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}

	switch v := data.(type) {
	case *models.PixelGrid:
		return imageio.Save(filepath.Join(stageDir, fmt.Sprintf("%03d.png", index)), v)

	case []float64:
		if len(v) == 0 {
			return nil
		}
		spectrum := mat.NewDense(1, len(v), v)
		return imageio.SaveMatrix(filepath.Join(stageDir, fmt.Sprintf("%03d.zst", index)), spectrum)

	case mat.Matrix:
		return imageio.SaveMatrix(filepath.Join(stageDir, fmt.Sprintf("%03d.zst", index)), v)

	default:
		filename := filepath.Join(stageDir, fmt.Sprintf("%03d.txt", index))
		return os.WriteFile(filename, []byte(fmt.Sprintf("%v", v)), 0644)
	}
}
