package denoise

import (
	"github.com/pbnjay/memory"
)

// totalMemory reports physical memory in bytes, 0 if unknown
var totalMemory = memory.TotalMemory

// memoryShare is the fraction of physical memory concurrent tiles may use
const memoryShare = 4

// tileFootprint estimates the bytes needed to denoise a region of the given
// pixel count with patches of the given side. With the default half-patch
// overlap every pixel lands in about four patches, and the sample matrix,
// its coefficients and the reconstruction are alive at the same time.
func tileFootprint(pixels, side int) uint64 {
	dim := uint64(side * side)
	return 3*4*8*uint64(pixels) + 2*8*dim*dim
}

// MaxWorkers caps the requested worker count so that the tiles processed at
// the same time fit into a quarter of physical memory. It never returns
// less than one.
func MaxWorkers(requested, width, height, tileCount, patchSide int) int {
	if requested < 1 {
		requested = 1
	}
	if tileCount < 1 {
		tileCount = 1
	}
	total := totalMemory()
	if total == 0 {
		return requested
	}
	perTile := tileFootprint(width*height/tileCount+1, patchSide)
	fit := total / memoryShare / perTile
	if fit < 1 {
		return 1
	}
	if fit < uint64(requested) {
		return int(fit)
	}
	return requested
}
