// Package denoise drives patch-based PCA denoising of grayscale grids.
//
// A run extracts overlapping patches, decomposes them on their empirical
// eigenbasis, shrinks the coefficients and rebuilds the grid from the
// denoised patches. In global mode one basis serves the whole image; in
// local mode the image is partitioned into tiles that are denoised
// independently and in parallel, then stitched back together.
package denoise

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"pcadenoise/internal/models"
	"pcadenoise/pkg/patch"
	"pcadenoise/pkg/pca"
	"pcadenoise/pkg/threshold"
	"pcadenoise/pkg/tiling"
)

// ProgressCallback reports progress while tiles are processed
type ProgressCallback func(completed, total int, message string)

// Params holds the denoising parameters.
type Params struct {
	// PatchSide is the edge length of the square patches. Each patch becomes
	// a PatchSide^2 dimensional sample, so every PCA call needs at least that
	// many patches.
	PatchSide int

	// MinOverlap is the minimum number of samples shared by neighboring
	// patches. A negative value selects PatchSide/2.
	MinOverlap int

	// Global computes one PCA over the whole image instead of one per tile
	Global bool

	// TileCount is the requested number of tiles in local mode
	TileCount int

	// Threshold is the shrinkage operator name, "hard" or "soft"
	Threshold string

	// Shrink is the threshold estimator name, "visu" or "bayes"
	Shrink string

	// Sigma is the noise standard deviation. Values <= 0 request an estimate
	// from the lowest-energy components.
	Sigma float64

	// NoiseFraction is the share of components used for the sigma estimate.
	// Zero selects threshold.DefaultNoiseFraction.
	NoiseFraction float64

	// Blend selects how overlapping patches are merged
	Blend patch.Blend

	// NumCores bounds the number of tiles processed concurrently
	NumCores int

	// SaveIntermediaryResults writes inputs, tiles, spectra and outputs of
	// each stage below IntermediaryDir
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary results are written
	IntermediaryDir string

	// Progress is called after each processed tile, if set
	Progress ProgressCallback

	// Warning receives non-fatal errors such as failed intermediary writes.
	// Tiles run concurrently but calls are serialized, so the callback
	// need not be safe for concurrent use.
	Warning func(error)
}

// DefaultParams returns the parameters used when nothing else is configured
func DefaultParams() *Params {
	return &Params{
		PatchSide:     8,
		MinOverlap:    -1,
		Global:        true,
		TileCount:     4,
		Threshold:     "soft",
		Shrink:        "visu",
		Sigma:         0,
		NoiseFraction: threshold.DefaultNoiseFraction,
		Blend:         patch.LastWriter,
		NumCores:      runtime.NumCPU(),
	}
}

// RegionReport describes the processing of one region (the whole image in
// global mode, one tile in local mode)
type RegionReport struct {
	PosX, PosY    int
	Width, Height int

	// Patches is the number of patches fed to PCA
	Patches int

	// Sigma is the noise level used, given or estimated
	Sigma float64

	// Lambda is the base threshold before per-component scaling
	Lambda float64

	// Skipped is set for tiles too small to hold a single patch
	Skipped bool
}

// Denoiser runs the denoising pipeline. A Denoiser keeps the reports of its
// last run and must not be shared between concurrent runs.
type Denoiser struct {
	params  *Params
	reports []RegionReport
	bases   []*pca.Basis

	warnMu sync.Mutex
}

// NewDenoiser creates a denoiser with the provided parameters
func NewDenoiser(params *Params) *Denoiser {
	return &Denoiser{params: params}
}

// Reports returns the per-region reports of the last run
func (d *Denoiser) Reports() []RegionReport {
	return d.reports
}

// Bases returns the eigenbases of the last run in report order, with the
// coefficients already thresholded. Skipped tiles have a nil basis.
func (d *Denoiser) Bases() []*pca.Basis {
	return d.bases
}

func (d *Denoiser) warn(err error) {
	if err == nil || d.params.Warning == nil {
		return
	}
	d.warnMu.Lock()
	defer d.warnMu.Unlock()
	d.params.Warning(err)
}

// settings are the validated, resolved parameters of one run
type settings struct {
	side     int
	overlap  int
	kind     threshold.Kind
	shrink   threshold.Shrink
	sigma    float64
	fraction float64
	blend    patch.Blend
	workers  int
}

// resolve validates the parameters against grid
func (d *Denoiser) resolve(grid *models.PixelGrid) (settings, error) {
	p := d.params
	if grid == nil || grid.Width <= 0 || grid.Height <= 0 || len(grid.Pix) != grid.Width*grid.Height {
		return settings{}, fmt.Errorf("%w: empty or malformed grid", models.ErrInvalidParameter)
	}
	if p.PatchSide <= 0 || p.PatchSide > min(grid.Width, grid.Height) {
		return settings{}, fmt.Errorf("%w: patch side %d outside (0,%d] for %dx%d grid",
			models.ErrInvalidParameter, p.PatchSide, min(grid.Width, grid.Height), grid.Width, grid.Height)
	}

	kind, err := threshold.ParseKind(p.Threshold)
	if err != nil {
		return settings{}, fmt.Errorf("%w: %w", models.ErrInvalidParameter, err)
	}
	shrink, err := threshold.ParseShrink(p.Shrink)
	if err != nil {
		return settings{}, fmt.Errorf("%w: %w", models.ErrInvalidParameter, err)
	}

	if math.IsNaN(p.Sigma) || math.IsInf(p.Sigma, 0) {
		return settings{}, fmt.Errorf("%w: noise sigma %g is not finite", models.ErrInvalidParameter, p.Sigma)
	}

	overlap := p.MinOverlap
	if overlap < 0 {
		overlap = p.PatchSide / 2
	}
	if overlap >= p.PatchSide {
		return settings{}, fmt.Errorf("%w: overlap %d must be smaller than patch side %d",
			models.ErrInvalidParameter, overlap, p.PatchSide)
	}

	fraction := p.NoiseFraction
	if fraction == 0 {
		fraction = threshold.DefaultNoiseFraction
	}
	if fraction < 0 || fraction > 1 || math.IsNaN(fraction) {
		return settings{}, fmt.Errorf("%w: noise fraction %g outside (0,1]", models.ErrInvalidParameter, fraction)
	}

	if p.Blend != patch.LastWriter && p.Blend != patch.Average {
		return settings{}, fmt.Errorf("%w: blend mode %d", models.ErrInvalidParameter, p.Blend)
	}

	workers := p.NumCores
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if !p.Global {
		workers = MaxWorkers(workers, grid.Width, grid.Height, p.TileCount, p.PatchSide)
	}

	return settings{
		side:     p.PatchSide,
		overlap:  overlap,
		kind:     kind,
		shrink:   shrink,
		sigma:    p.Sigma,
		fraction: fraction,
		blend:    p.Blend,
		workers:  workers,
	}, nil
}

// Denoise validates the parameters and runs the global or local pipeline
func (d *Denoiser) Denoise(ctx context.Context, grid *models.PixelGrid) (*models.PixelGrid, error) {
	if d.params.Global {
		return d.DenoiseGlobal(ctx, grid)
	}
	return d.DenoiseLocal(ctx, grid)
}

// DenoiseGlobal runs a single PCA over all patches of the grid and applies
// one threshold to every coefficient
func (d *Denoiser) DenoiseGlobal(ctx context.Context, grid *models.PixelGrid) (*models.PixelGrid, error) {
	s, err := d.resolve(grid)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.reports, d.bases = nil, nil
	d.warn(d.saveIntermediaryResult("01_input", grid, 0))

	policy := threshold.Policy{Kind: s.kind, Shrink: s.shrink, Scope: threshold.Global}
	out, basis, report, err := denoiseRegion(grid, s, policy)
	if err != nil {
		return nil, err
	}
	d.reports = []RegionReport{report}
	d.bases = []*pca.Basis{basis}
	d.warn(d.saveIntermediaryResult("03_eigenvalues", basis.Values, 0))
	d.warn(d.saveIntermediaryResult("05_output", out, 0))

	if d.params.Progress != nil {
		d.params.Progress(1, 1, "global PCA done")
	}
	return out, nil
}

// DenoiseLocal partitions the grid into tiles, denoises every tile with its
// own PCA and eigenvalue-adaptive thresholds, and stitches the results.
// Tiles smaller than a patch are passed through unchanged.
func (d *Denoiser) DenoiseLocal(ctx context.Context, grid *models.PixelGrid) (*models.PixelGrid, error) {
	s, err := d.resolve(grid)
	if err != nil {
		return nil, err
	}
	if d.params.TileCount < 1 {
		return nil, fmt.Errorf("%w: tile count %d", models.ErrInvalidParameter, d.params.TileCount)
	}
	d.reports, d.bases = nil, nil
	d.warn(d.saveIntermediaryResult("01_input", grid, 0))

	tiles, err := tiling.Partition(grid, d.params.TileCount)
	if err != nil {
		return nil, err
	}
	for i, tile := range tiles {
		d.warn(d.saveIntermediaryResult("02_tiles", tile.PixelGrid, i))
	}

	policy := threshold.Policy{Kind: s.kind, Shrink: s.shrink, Scope: threshold.Adaptive}
	processed, reports, bases, err := d.processTilesInParallel(ctx, tiles, s, policy)
	if err != nil {
		return nil, err
	}
	d.reports, d.bases = reports, bases

	out, err := tiling.Stitch(processed, grid.Width, grid.Height)
	if err != nil {
		return nil, err
	}
	d.warn(d.saveIntermediaryResult("05_output", out, 0))
	return out, nil
}

// processTilesInParallel denoises the tiles on at most s.workers goroutines.
// The first failure cancels the tiles that have not started yet.
func (d *Denoiser) processTilesInParallel(ctx context.Context, tiles []*models.Tile, s settings, policy threshold.Policy) ([]*models.Tile, []RegionReport, []*pca.Basis, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type processingResult struct {
		index  int
		tile   *models.Tile
		basis  *pca.Basis
		report RegionReport
		err    error
	}

	total := len(tiles)
	resultChan := make(chan processingResult, total)
	sem := make(chan struct{}, s.workers)

	for i, tile := range tiles {
		go func(index int, tile *models.Tile) {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				resultChan <- processingResult{index: index, err: err}
				return
			}
			out, basis, report, err := d.processTile(tile, index, s, policy)
			resultChan <- processingResult{index: index, tile: out, basis: basis, report: report, err: err}
		}(i, tile)
	}

	processed := make([]*models.Tile, total)
	reports := make([]RegionReport, total)
	bases := make([]*pca.Basis, total)
	var firstErr error
	for completed := 0; completed < total; completed++ {
		res := <-resultChan
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		processed[res.index] = res.tile
		reports[res.index] = res.report
		bases[res.index] = res.basis

		if d.params.Progress != nil {
			d.params.Progress(completed+1, total, fmt.Sprintf("tile %d at (%d,%d)", res.index, res.tile.PosX, res.tile.PosY))
		}
	}
	if firstErr != nil {
		return nil, nil, nil, firstErr
	}
	return processed, reports, bases, nil
}

// processTile denoises a single tile, passing it through if no patch fits
func (d *Denoiser) processTile(tile *models.Tile, index int, s settings, policy threshold.Policy) (*models.Tile, *pca.Basis, RegionReport, error) {
	if tile.Width < s.side || tile.Height < s.side {
		report := RegionReport{PosX: tile.PosX, PosY: tile.PosY, Width: tile.Width, Height: tile.Height, Skipped: true}
		return tile, nil, report, nil
	}

	out, basis, report, err := denoiseRegion(tile.PixelGrid, s, policy)
	if err != nil {
		return nil, nil, RegionReport{}, fmt.Errorf("tile %d (%dx%d at %d,%d): %w", index, tile.Width, tile.Height, tile.PosX, tile.PosY, err)
	}
	report.PosX, report.PosY = tile.PosX, tile.PosY

	d.warn(d.saveIntermediaryResult("03_eigenvalues", basis.Values, index))
	d.warn(d.saveIntermediaryResult("04_denoised_tiles", out, index))
	return &models.Tile{PixelGrid: out, PosX: tile.PosX, PosY: tile.PosY}, basis, report, nil
}

// denoiseRegion runs extract, decompose, estimate noise, threshold and
// reconstruct on one grid
func denoiseRegion(grid *models.PixelGrid, s settings, policy threshold.Policy) (*models.PixelGrid, *pca.Basis, RegionReport, error) {
	report := RegionReport{Width: grid.Width, Height: grid.Height}

	patches, err := patch.Extract(grid, s.side, s.overlap)
	if err != nil {
		return nil, nil, report, err
	}
	report.Patches = len(patches)

	samples, err := patch.ToMatrix(patches)
	if err != nil {
		return nil, nil, report, err
	}

	basis, err := pca.Decompose(samples)
	if err != nil {
		return nil, nil, report, err
	}

	sigma := s.sigma
	if sigma <= 0 {
		sigma, err = threshold.EstimateNoiseSigma(basis.Coefficients, s.fraction)
		if err != nil {
			return nil, nil, report, err
		}
	}
	report.Sigma = sigma

	lambda, err := policy.Base(basis.Coefficients, sigma)
	if err != nil {
		return nil, nil, report, err
	}
	report.Lambda = lambda

	if _, err := policy.Apply(basis.Coefficients, basis.Values, sigma); err != nil {
		return nil, nil, report, err
	}

	denoised, err := basis.Reconstruct(basis.Coefficients)
	if err != nil {
		return nil, nil, report, err
	}
	if err := patch.FromMatrix(denoised, patches); err != nil {
		return nil, nil, report, err
	}

	out, err := patch.ReconstructWith(patches, grid.Width, grid.Height, s.blend)
	if err != nil {
		return nil, nil, report, err
	}
	return out, basis, report, nil
}

// Global denoises grid with one PCA over the whole image
func Global(grid *models.PixelGrid, patchSide int, thresholdKind, shrinkKind string, sigma float64) (*models.PixelGrid, error) {
	return Denoise(grid, patchSide, true, thresholdKind, shrinkKind, sigma)
}

// Local denoises grid with an independent PCA per tile
func Local(grid *models.PixelGrid, patchSide, tileCount int, thresholdKind, shrinkKind string, sigma float64) (*models.PixelGrid, error) {
	params := DefaultParams()
	params.PatchSide = patchSide
	params.Global = false
	params.TileCount = tileCount
	params.Threshold = thresholdKind
	params.Shrink = shrinkKind
	params.Sigma = sigma
	return NewDenoiser(params).Denoise(context.Background(), grid)
}

// Denoise denoises grid with the default overlap and tile count
func Denoise(grid *models.PixelGrid, patchSide int, isGlobal bool, thresholdKind, shrinkKind string, sigma float64) (*models.PixelGrid, error) {
	params := DefaultParams()
	params.PatchSide = patchSide
	params.Global = isGlobal
	params.Threshold = thresholdKind
	params.Shrink = shrinkKind
	params.Sigma = sigma
	return NewDenoiser(params).Denoise(context.Background(), grid)
}
